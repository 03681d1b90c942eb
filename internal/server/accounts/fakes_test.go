package accounts

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophaccounts/internal/server/models"
)

// fakeHasher keeps passwords readable so tests can assert on stored hashes.
type fakeHasher struct {
	hashErr   error
	verifyErr error
}

func (h *fakeHasher) Hash(password string) (string, error) {
	if h.hashErr != nil {
		return "", h.hashErr
	}
	return "hashed:" + password, nil
}

func (h *fakeHasher) Verify(password, encoded string) (bool, error) {
	if h.verifyErr != nil {
		return false, h.verifyErr
	}
	return encoded == "hashed:"+password, nil
}

type sentMail struct {
	to, subject, body string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *fakeMailer) Send(ctx context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

// fakeImages records calls in order as "upload:<body>" and "delete:<id>".
type fakeImages struct {
	ops       []string
	uploadErr error
	deleteErr error
	n         int
}

func (f *fakeImages) Upload(ctx context.Context, r io.Reader, contentType string) (models.Avatar, error) {
	if f.uploadErr != nil {
		return models.Avatar{}, f.uploadErr
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return models.Avatar{}, err
	}
	f.n++
	id := "avatars/" + string(b)
	f.ops = append(f.ops, "upload:"+string(b))
	return models.Avatar{ID: id, URL: "http://s3/" + id}, nil
}

func (f *fakeImages) Delete(ctx context.Context, id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.ops = append(f.ops, "delete:"+id)
	return nil
}

func upload(body string) *Upload {
	return &Upload{Body: strings.NewReader(body), ContentType: "image/png"}
}

// codes returns a generator yielding the given values in order.
func codes(values ...int) func(int64) (int, error) {
	i := 0
	return func(int64) (int, error) {
		if i >= len(values) {
			return 0, errors.New("no more codes")
		}
		v := values[i]
		i++
		return v, nil
	}
}

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }
