package feed

import (
	"errors"
	"math"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/onnwee/feedrank/internal/item"
)

// DefaultCursorTTL is how long a cursor stays resumable.
const DefaultCursorTTL = 24 * time.Hour

// Cursor marks a position in one user's ranked sequence.
type Cursor struct {
	SnapshotID string  // Snapshot the position was taken in
	Limit      int     // Candidate bound N in force when minted
	Policy     string  // Ranking weights fingerprint in force when minted
	UserID     string  // User the cursor was minted for
	Key        SortKey // Last item served

	// Profile is the interest profile the scroll is ranked with. It is
	// fixed when the scroll starts so the requester's own likes cannot
	// reorder the remaining pages.
	Profile []string
}

// cursorClaims is the signed wire form of a Cursor.
type cursorClaims struct {
	jwt.RegisteredClaims
	SnapshotID string   `json:"sid"`
	Limit      int      `json:"n"`
	Policy     string   `json:"pol"`
	Score      float64  `json:"sc"`
	CreatedAt  int64    `json:"ca"` // Unix nanoseconds
	ItemID     string   `json:"iid"`
	Profile    []string `json:"pt,omitempty"`
}

// CursorCodec encodes cursors as HS256-signed tokens. Tokens are opaque to
// clients: any edit invalidates the signature. Supports secret rotation by
// also accepting tokens signed with the previous secret.
type CursorCodec struct {
	currentSecret  []byte
	previousSecret []byte
	ttl            time.Duration
	now            func() time.Time
}

// NewCursorCodec creates a codec signing with secret. previousSecret may be
// empty. A non-positive ttl mints cursors that never expire.
func NewCursorCodec(secret, previousSecret string, ttl time.Duration) *CursorCodec {
	c := &CursorCodec{
		currentSecret: []byte(secret),
		ttl:           ttl,
		now:           time.Now,
	}
	if previousSecret != "" {
		c.previousSecret = []byte(previousSecret)
	}
	return c
}

// Encode mints an opaque token for cur.
func (c *CursorCodec) Encode(cur Cursor) (string, error) {
	now := c.now()
	claims := cursorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  cur.UserID,
			IssuedAt: jwt.NewNumericDate(now),
		},
		SnapshotID: cur.SnapshotID,
		Limit:      cur.Limit,
		Policy:     cur.Policy,
		Score:      cur.Key.Score,
		CreatedAt:  cur.Key.CreatedAt.UnixNano(),
		ItemID:     cur.Key.ItemID,
		Profile:    cur.Profile,
	}
	if c.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(c.ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.currentSecret)
}

// Decode verifies and decodes a token. It returns ErrCursorExpired for a
// genuine but expired token and ErrMalformedCursor for anything else that
// does not verify.
func (c *CursorCodec) Decode(token string) (*Cursor, error) {
	if token == "" {
		return nil, ErrMalformedCursor
	}

	claims, err := c.parse(token, c.currentSecret)
	if err != nil && !errors.Is(err, jwt.ErrTokenExpired) && c.previousSecret != nil {
		claims, err = c.parse(token, c.previousSecret)
	}
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, ErrCursorExpired
	}
	if err != nil {
		return nil, ErrMalformedCursor
	}

	if claims.SnapshotID == "" || claims.ItemID == "" || claims.Subject == "" ||
		claims.Limit <= 0 || math.IsNaN(claims.Score) || math.IsInf(claims.Score, 0) ||
		len(claims.Profile) > item.MaxProfileTags {
		return nil, ErrMalformedCursor
	}

	return &Cursor{
		SnapshotID: claims.SnapshotID,
		Limit:      claims.Limit,
		Policy:     claims.Policy,
		UserID:     claims.Subject,
		Key: SortKey{
			Score:     claims.Score,
			CreatedAt: time.Unix(0, claims.CreatedAt).UTC(),
			ItemID:    claims.ItemID,
		},
		Profile: claims.Profile,
	}, nil
}

func (c *CursorCodec) parse(token string, secret []byte) (*cursorClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &cursorClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, ErrMalformedCursor
		}
		return secret, nil
	}, jwt.WithTimeFunc(c.now))
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*cursorClaims)
	if !ok || !parsed.Valid {
		return nil, ErrMalformedCursor
	}
	return claims, nil
}
