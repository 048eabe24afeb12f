// Package core defines the shared vocabulary of querygen.
//
// This package contains:
//   - Statement skeletons (Statement, FieldSource, ParamAssociation)
//   - Schema entities (Table, View, Column)
//   - Type descriptors and annotation values
//   - Sentinel errors shared by every stage
//
// pkg/core imports only the standard library. All other packages depend
// on core, not the reverse.
package core
