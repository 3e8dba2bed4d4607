// Package kyc normalises KYC vendor payloads into core.KYCStatus values.
package kyc

const (
	VendorPersona = "persona"
	VendorDidit   = "didit"
)
