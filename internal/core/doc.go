// Package core holds the sales import domain: parsing the sales export,
// staging its entities, reconciling them into a Store and reading the
// aggregated chart data back out.
//
// The package is independent of any transport. The web server, the
// salesctl CLI and the tests all drive it through [Service].
//
// # Import flow
//
//  1. [WrapForImport] decodes the charset, strips a BOM and validates UTF-8
//  2. The header row is indexed by normalized label ([MakeHeaderIndex])
//  3. Each row is parsed with defaults applied ([ParseRecord]) and staged;
//     the first row carrying a code defines that entity for the import
//  4. Staged entities are written in dependency order inside one store
//     transaction: segments, customers, categories, products, bills, lines
//
// A row whose timestamp does not parse still contributes its segment,
// customer, category and product, but no bill and no bill line. Any store
// error rolls the whole import back.
//
// # Error Handling
//
// Input problems are reported with sentinel errors ([ErrNotCSV],
// [ErrInvalidEncoding], ...; see [IsInputError]). [MapError] turns any error
// into a [UserMessage] with a support code.
package core
