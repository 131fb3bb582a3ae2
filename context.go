package authsession

import "context"

type ctxKey string

const (
	ctxKeySubject    ctxKey = "authsession_subject"
	ctxKeyClaims     ctxKey = "authsession_claims"
	ctxKeyCredential ctxKey = "authsession_credential"
)

// WithSubject stores the authenticated subject in the context.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, ctxKeySubject, subject)
}

// SubjectFromContext extracts the authenticated subject from the context.
func SubjectFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeySubject).(string)
	return v
}

// WithClaims stores decoded credential claims in the context.
func WithClaims(ctx context.Context, claims *DecodedClaims) context.Context {
	return context.WithValue(ctx, ctxKeyClaims, claims)
}

// ClaimsFromContext extracts decoded credential claims from the context.
func ClaimsFromContext(ctx context.Context) *DecodedClaims {
	v, _ := ctx.Value(ctxKeyClaims).(*DecodedClaims)
	return v
}

// WithCredential stores the current credential in the context.
func WithCredential(ctx context.Context, cred *Credential) context.Context {
	return context.WithValue(ctx, ctxKeyCredential, cred)
}

// CredentialFromContext extracts the current credential from the context.
func CredentialFromContext(ctx context.Context) *Credential {
	v, _ := ctx.Value(ctxKeyCredential).(*Credential)
	return v
}
