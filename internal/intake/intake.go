// Package intake parses an inbound document package into content items
// plus the metadata needed to build a publication.
//
// Intake is side-effect-free: it never touches the archive or the
// ledger. The package format is a JSON manifest validated against the
// embedded CUE schema (internal/schema). Identities, role names, license
// names, and titles are NFC normalized so that equivalent Unicode
// spellings land on the same requirement tuple.
package intake

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/presswork/internal/model"
	"github.com/roach88/presswork/internal/schema"
)

// FormatV1 is the only manifest format this engine accepts.
const FormatV1 = "presswork/v1"

// Input errors. The engine maps these to a failed publication with the
// wrapped detail as the failure reason.
var (
	// ErrMalformedPackage reports a structural parse error.
	ErrMalformedPackage = errors.New("malformed package")

	// ErrUnsupportedFormat reports a manifest with an unknown format tag.
	ErrUnsupportedFormat = errors.New("unsupported package format")

	// ErrInvalidMetadata reports a package with zero content items or an
	// empty/unparseable role or license subject.
	ErrInvalidMetadata = errors.New("invalid package metadata")
)

// Manifest is the wire shape of a package.
type Manifest struct {
	Format    string `json:"format"`
	Publisher string `json:"publisher"`
	Message   string `json:"message,omitempty"`
	Items     []Item `json:"items"`
}

// Item is one declared document or resource.
type Item struct {
	Kind    string `json:"kind"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content"`

	// Revises declares that this item is a revision of an existing
	// archived identifier, as "id" or "id@version". The version part is
	// advisory and ignored at resolution.
	Revises string `json:"revises,omitempty"`

	Roles   []RoleRequirement   `json:"roles,omitempty"`
	License *LicenseRequirement `json:"license,omitempty"`
}

// RoleRequirement names one identity that must accept one role.
type RoleRequirement struct {
	Role     string `json:"role"`
	Identity string `json:"identity"`
}

// LicenseRequirement names the license and the identities that must
// accept it.
type LicenseRequirement struct {
	Name      string   `json:"name"`
	Acceptors []string `json:"acceptors"`
}

// ParsedItem is one content item after intake, before identifier
// resolution.
type ParsedItem struct {
	Kind     model.ItemKind
	Title    string
	Content  []byte
	Hash     string
	Revises  model.ContentID // empty when the item is new content
	Position int

	// Requirements are the (kind, subject, identity) tuples this item
	// demands, NFC normalized. Deduplication across items happens when
	// the ledger opens.
	Requirements []RequirementSpec
}

// RequirementSpec is one declared acceptance requirement tuple.
type RequirementSpec struct {
	Kind     model.SubjectKind
	Subject  string
	Identity string
}

// Result is the parse output for one package.
type Result struct {
	Publisher string
	Message   string
	Items     []ParsedItem
}

// Parse turns raw package bytes into a Result.
//
// Error mapping:
//   - bytes that are not a JSON object: ErrMalformedPackage
//   - a format tag other than FormatV1: ErrUnsupportedFormat
//   - schema violations, zero items, empty subjects: ErrInvalidMetadata
func Parse(data []byte) (*Result, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPackage, err)
	}

	if m.Format != FormatV1 {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, m.Format)
	}

	if err := schema.ValidateManifest(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}

	res := &Result{
		Publisher: normalize(m.Publisher),
		Message:   strings.TrimSpace(m.Message),
	}

	// Each content identifier may appear once per package: two items
	// revising the same base would race themselves at commit.
	revised := make(map[model.ContentID]bool)
	for i, item := range m.Items {
		parsed, err := parseItem(i, item)
		if err != nil {
			return nil, err
		}
		if parsed.Revises != "" {
			if revised[parsed.Revises] {
				return nil, fmt.Errorf("%w: item %d: duplicate revision target %s",
					ErrInvalidMetadata, i, parsed.Revises)
			}
			revised[parsed.Revises] = true
		}
		res.Items = append(res.Items, parsed)
	}

	return res, nil
}

func parseItem(position int, item Item) (ParsedItem, error) {
	parsed := ParsedItem{
		Kind:     model.ItemKind(item.Kind),
		Title:    normalize(item.Title),
		Content:  []byte(item.Content),
		Hash:     model.ContentHash([]byte(item.Content)),
		Position: position,
	}

	if item.Revises != "" {
		id, _, err := model.ParseRef(item.Revises)
		if err != nil {
			return ParsedItem{}, fmt.Errorf("%w: item %d: %v",
				ErrInvalidMetadata, position, err)
		}
		parsed.Revises = id
	}

	for _, role := range item.Roles {
		subject := normalize(role.Role)
		identity := normalize(role.Identity)
		if subject == "" || identity == "" {
			return ParsedItem{}, fmt.Errorf(
				"%w: item %d: role requirement with empty subject or identity",
				ErrInvalidMetadata, position)
		}
		parsed.Requirements = append(parsed.Requirements, RequirementSpec{
			Kind:     model.SubjectRole,
			Subject:  subject,
			Identity: identity,
		})
	}

	if item.License != nil {
		name := normalize(item.License.Name)
		if name == "" {
			return ParsedItem{}, fmt.Errorf(
				"%w: item %d: license with empty name",
				ErrInvalidMetadata, position)
		}
		for _, acceptor := range item.License.Acceptors {
			identity := normalize(acceptor)
			if identity == "" {
				return ParsedItem{}, fmt.Errorf(
					"%w: item %d: license acceptor with empty identity",
					ErrInvalidMetadata, position)
			}
			parsed.Requirements = append(parsed.Requirements, RequirementSpec{
				Kind:     model.SubjectLicense,
				Subject:  name,
				Identity: identity,
			})
		}
	}

	return parsed, nil
}

// normalize trims whitespace and applies Unicode NFC so equivalent
// spellings compare equal in requirement tuples.
func normalize(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
