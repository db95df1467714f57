// Package instrument builds the per-session instrument directory by
// identifying every resource the resource manager lists.
package instrument
