// Package core provides the reference-data ingestion and normalization pipeline.
//
// This package contains all domain logic independent of storage engine, CLI,
// or HTTP surface. Storage is reached only through the [Gateway] contract, so
// the same pipeline runs against PostgreSQL in production and an in-memory
// store in tests.
//
// # Architecture
//
// The pipeline is organized around four components:
//
//   - Parser: streams delimited rows and maps each one to a [Record] of a
//     registered [Kind] (Country, State, City, Language, UnitType, Unit).
//   - Resolver: attaches the parent identity to State, City and Unit records by
//     looking up the parent's natural key.
//   - Loader: drives Parser -> Resolver -> Gateway.Create sequentially and
//     stops at the first error.
//   - Normalizer: converts quantities and prices with direct unit factors and
//     dated currency rates.
//
// # Kind Registry
//
// Reference kinds are registered at init time. Each [KindSpec] fixes the
// column layout of its rows and names its parent kind, if any:
//
//	Country:  [iso_code, name]
//	State:    [country_iso_code, iso_code, name]
//	City:     [state_iso_code, iso_code, name]
//	Language: [iso_code, name]
//	UnitType: [code, name]
//	Unit:     [unit_type_code, iso_code, name, is_metric]
//
// Country, State and City codes are folded to upper case on parse. Language
// and unit codes keep their case.
//
// # Loading Order
//
// Parents must exist before children are loaded. The pipeline never buffers
// or reorders rows: a State row whose Country is missing fails the run with
// [ParentNotFoundError], and the caller reruns with Countries loaded first.
//
// # Error Handling
//
// Every failure is a typed error from errors.go. A run stops at the first
// failing row and reports it wrapped in [RowError]. [MapError] turns any of
// them into a coded [UserMessage] for display:
//
//   - ROW001-ROW099: row shape errors
//   - REF001-REF099: reference resolution and uniqueness
//   - CNV001-CNV099: unit and currency conversion
//   - DB001-DB099: database errors
//
// # Audit Stamping
//
// Gateways stamp created_by/updated_by and timestamps through a single
// [Auditor]. Entities never stamp themselves.
package core
