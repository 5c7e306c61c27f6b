package model

// EngineVersion is the presswork engine version.
const EngineVersion = "0.1.0"
