// Package manifest holds the supported device list and the checks run on a
// request before any pipeline starts.
//
// The device list maps canonical codenames to a display name and vendor. A
// default list is compiled in; a JSON file with the same shape replaces it.
// Every rejection is reported as [ErrValidation].
package manifest
