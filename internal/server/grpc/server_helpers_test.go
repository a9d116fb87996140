package grpcserver

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc/metadata"
)

func makeJWT(t *testing.T, sub string, key []byte, method jwt.SigningMethod, iat time.Time, ttl time.Duration) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   sub,
		IssuedAt:  jwt.NewNumericDate(iat),
		NotBefore: jwt.NewNumericDate(iat),
		ExpiresAt: jwt.NewNumericDate(iat.Add(ttl)),
	}
	token := jwt.NewWithClaims(method, claims)
	s, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return s
}

func ctxWithAuth(token string) context.Context {
	md := metadata.New(map[string]string{
		"authorization": "Bearer " + token,
	})
	return metadata.NewIncomingContext(context.Background(), md)
}

func Test_bearerTokenFromMD_OkAndErrors(t *testing.T) {
	t.Parallel()

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer abc.def.ghi"))
	got, err := bearerTokenFromMD(ctx)
	if err != nil || got != "abc.def.ghi" {
		t.Fatalf("ok: got=%q err=%v", got, err)
	}

	ctx = metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "bearer xyz"))
	if got, err := bearerTokenFromMD(ctx); err != nil || got != "xyz" {
		t.Fatalf("case-insensitive scheme: got=%q err=%v", got, err)
	}

	ctx = metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Basic foo"))
	if _, err := bearerTokenFromMD(ctx); err == nil {
		t.Fatalf("want error on non-bearer")
	}

	ctx = metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer   "))
	if _, err := bearerTokenFromMD(ctx); err == nil {
		t.Fatalf("want error on empty token")
	}

	if _, err := bearerTokenFromMD(context.Background()); err == nil {
		t.Fatalf("want error on no metadata")
	}
}

func Test_userIDFromMD_Valid(t *testing.T) {
	t.Parallel()

	key := []byte("secret")
	j := makeJWT(t, "4242", key, jwt.SigningMethodHS256, time.Now().UTC().Add(-time.Minute), 10*time.Minute)

	id, err := userIDFromMD(ctxWithAuth(j), key)
	if err != nil {
		t.Fatalf("userIDFromMD: %v", err)
	}
	if id != 4242 {
		t.Fatalf("id mismatch: %d", id)
	}
}

func Test_userIDFromMD_IssueTokenRoundTrip(t *testing.T) {
	t.Parallel()

	key := []byte("secret")
	tok, err := IssueToken(key, -1001234567890, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	id, err := userIDFromMD(ctxWithAuth(tok), key)
	if err != nil || id != -1001234567890 {
		t.Fatalf("round trip: id=%d err=%v", id, err)
	}

	if _, err := userIDFromMD(ctxWithAuth(tok), []byte("other")); err == nil {
		t.Fatalf("want error on foreign key")
	}
}

func Test_userIDFromMD_Expired(t *testing.T) {
	t.Parallel()

	key := []byte("secret")
	j := makeJWT(t, "7", key, jwt.SigningMethodHS256, time.Now().UTC().Add(-2*time.Hour), -time.Hour)

	if _, err := userIDFromMD(ctxWithAuth(j), key); err == nil {
		t.Fatalf("want error on expired token")
	}
}

func Test_userIDFromMD_WithinLeeway(t *testing.T) {
	t.Parallel()

	key := []byte("secret")
	// expired 10s ago, inside the 30s leeway
	j := makeJWT(t, "7", key, jwt.SigningMethodHS256, time.Now().UTC().Add(-time.Minute), 50*time.Second)

	if _, err := userIDFromMD(ctxWithAuth(j), key); err != nil {
		t.Fatalf("want leeway to accept: %v", err)
	}
}

func Test_userIDFromMD_NoExpiry(t *testing.T) {
	t.Parallel()

	key := []byte("secret")
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "7"}).SignedString(key)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := userIDFromMD(ctxWithAuth(s), key); err == nil {
		t.Fatalf("want error on token without exp")
	}
}

func Test_userIDFromMD_BadSubject(t *testing.T) {
	t.Parallel()

	key := []byte("secret")
	j := makeJWT(t, "not-a-number", key, jwt.SigningMethodHS256, time.Now().UTC(), time.Hour)

	if _, err := userIDFromMD(ctxWithAuth(j), key); err == nil {
		t.Fatalf("want error on bad subject")
	}
}

func Test_userIDFromMD_WrongAlg(t *testing.T) {
	t.Parallel()

	key := []byte("secret")
	j := makeJWT(t, "7", key, jwt.SigningMethodHS384, time.Now().UTC(), time.Hour)

	if _, err := userIDFromMD(ctxWithAuth(j), key); err == nil {
		t.Fatalf("want error on wrong alg")
	}
}

func Test_userIDFromMD_InvalidTokenString(t *testing.T) {
	t.Parallel()

	if _, err := userIDFromMD(ctxWithAuth("this-is-not-a-jwt"), []byte("secret")); err == nil {
		t.Fatalf("want error on invalid token string")
	}
}
