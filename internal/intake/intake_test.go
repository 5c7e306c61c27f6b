package intake

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/presswork/internal/model"
)

const twoItemManifest = `{
	"format": "presswork/v1",
	"publisher": "user:press",
	"message": "second edition",
	"items": [
		{
			"kind": "document",
			"title": "Intro to Widgets",
			"content": "widget text",
			"revises": "doc-x@3",
			"roles": [{"role": "author", "identity": "user:alice"}],
			"license": {"name": "cc-by-4.0", "acceptors": ["user:alice"]}
		},
		{
			"kind": "resource",
			"content": "figure payload"
		}
	]
}`

func TestParse_TwoItems(t *testing.T) {
	res, err := Parse([]byte(twoItemManifest))
	require.NoError(t, err)

	assert.Equal(t, "user:press", res.Publisher)
	assert.Equal(t, "second edition", res.Message)
	require.Len(t, res.Items, 2)

	doc := res.Items[0]
	assert.Equal(t, model.KindDocument, doc.Kind)
	assert.Equal(t, "Intro to Widgets", doc.Title)
	assert.Equal(t, model.ContentID("doc-x"), doc.Revises)
	assert.Equal(t, 0, doc.Position)
	assert.Equal(t, model.ContentHash([]byte("widget text")), doc.Hash)
	require.Len(t, doc.Requirements, 2)
	assert.Equal(t, RequirementSpec{
		Kind: model.SubjectRole, Subject: "author", Identity: "user:alice",
	}, doc.Requirements[0])
	assert.Equal(t, RequirementSpec{
		Kind: model.SubjectLicense, Subject: "cc-by-4.0", Identity: "user:alice",
	}, doc.Requirements[1])

	resource := res.Items[1]
	assert.Equal(t, model.KindResource, resource.Kind)
	assert.Empty(t, resource.Revises)
	assert.Empty(t, resource.Requirements)
	assert.Equal(t, 1, resource.Position)
}

func TestParse_MalformedPackage(t *testing.T) {
	_, err := Parse([]byte("{truncated"))
	require.ErrorIs(t, err, ErrMalformedPackage)
}

func TestParse_UnsupportedFormat(t *testing.T) {
	_, err := Parse([]byte(`{"format": "epub/3", "publisher": "p", "items": []}`))
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestParse_ZeroItems(t *testing.T) {
	_, err := Parse([]byte(`{"format": "presswork/v1", "publisher": "p", "items": []}`))
	require.ErrorIs(t, err, ErrInvalidMetadata)
}

func TestParse_EmptyRoleSubject(t *testing.T) {
	manifest := `{
		"format": "presswork/v1",
		"publisher": "p",
		"items": [
			{"kind": "document", "content": "x",
			 "roles": [{"role": "   ", "identity": "user:a"}],
			 "license": {"name": "cc-by-4.0", "acceptors": ["user:a"]}}
		]
	}`
	// Whitespace-only subjects pass the schema's !="" check but must
	// still be rejected after trimming.
	_, err := Parse([]byte(manifest))
	require.ErrorIs(t, err, ErrInvalidMetadata)
}

func TestParse_BadRevisesRef(t *testing.T) {
	manifest := `{
		"format": "presswork/v1",
		"publisher": "p",
		"items": [
			{"kind": "resource", "content": "x", "revises": "doc-x@zero"}
		]
	}`
	_, err := Parse([]byte(manifest))
	require.ErrorIs(t, err, ErrInvalidMetadata)
}

func TestParse_DuplicateRevisionTarget(t *testing.T) {
	manifest := `{
		"format": "presswork/v1",
		"publisher": "p",
		"items": [
			{"kind": "document", "content": "first pass", "revises": "doc-x"},
			{"kind": "document", "content": "second pass", "revises": "doc-x@2"}
		]
	}`
	// Two items revising the same identifier would race each other for
	// the next version at commit.
	_, err := Parse([]byte(manifest))
	require.ErrorIs(t, err, ErrInvalidMetadata)
	assert.Contains(t, err.Error(), "doc-x")
}

func TestParse_NormalizesUnicode(t *testing.T) {
	// "é" as combining sequence (U+0065 U+0301) vs precomposed (U+00E9).
	manifest := `{
		"format": "presswork/v1",
		"publisher": "p",
		"items": [
			{"kind": "document", "content": "x",
			 "roles": [{"role": "author", "identity": "user:rémy"}],
			 "license": {"name": "cc-by-4.0", "acceptors": ["user:rémy"]}}
		]
	}`
	res, err := Parse([]byte(manifest))
	require.NoError(t, err)

	require.Len(t, res.Items[0].Requirements, 2)
	role := res.Items[0].Requirements[0]
	license := res.Items[0].Requirements[1]
	assert.Equal(t, role.Identity, license.Identity,
		"NFC normalization must unify equivalent identity spellings")
}

func TestParse_SideEffectFree(t *testing.T) {
	// Parsing the same bytes twice yields identical results.
	a, err := Parse([]byte(twoItemManifest))
	require.NoError(t, err)
	b, err := Parse([]byte(twoItemManifest))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
