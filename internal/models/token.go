package models

type TokenSubject string

const (
	SubjectAccess      TokenSubject = "ACCESS"
	SubjectActivate    TokenSubject = "ACTIVATE"
	SubjectReset       TokenSubject = "RESET"
	SubjectInvite      TokenSubject = "INVITE"
	SubjectQRCodeEntry TokenSubject = "QR_CODE_ENTRY"
)

// OneShot reports whether tokens of this subject are single use and
// recorded in the fast store.
func (s TokenSubject) OneShot() bool {
	switch s {
	case SubjectActivate, SubjectReset, SubjectInvite, SubjectQRCodeEntry:
		return true
	}
	return false
}
