package firebase

import (
	"context"
	"fmt"
	"strings"
)

// DevTokenPrefix marks tokens of the form "dev:<uid>" accepted outside
// production.
const DevTokenPrefix = "dev:"

// DevTokenVerifier accepts dev tokens and hands anything else to next, when
// set. It lets the memory backend run without a Firebase project.
type DevTokenVerifier struct {
	next *FirebaseAuthClient
}

func NewDevTokenVerifier(next *FirebaseAuthClient) *DevTokenVerifier {
	return &DevTokenVerifier{next: next}
}

func (v *DevTokenVerifier) VerifyToken(ctx context.Context, token string) (string, error) {
	if uid, ok := strings.CutPrefix(token, DevTokenPrefix); ok {
		uid = strings.TrimSpace(uid)
		if uid == "" {
			return "", fmt.Errorf("dev token has no uid")
		}
		return uid, nil
	}
	if v.next == nil {
		return "", fmt.Errorf("only dev tokens are accepted")
	}
	return v.next.VerifyToken(ctx, token)
}

func (v *DevTokenVerifier) TestConnection(ctx context.Context) error {
	if v.next == nil {
		return nil
	}
	return v.next.TestConnection(ctx)
}
