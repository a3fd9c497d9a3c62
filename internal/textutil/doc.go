// Package textutil provides the ordering helpers used when listing FITS files
// and folders.
package textutil
