// Package measurement maps rows of the student measurement table onto the
// fixed payload accepted by the remote store's submit endpoint.
//
// A Record is one table row keyed by column name. Prepare translates the
// columns listed in Mapping into their external names, attaches the fixed
// unit annotations and stamps the owning student id. Columns that are
// missing or empty in the row become JSON null.
//
// Velocity is the only physical computation carried here: the
// non-relativistic Doppler shift in km/s rounded to the nearest integer.
package measurement
