package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStaticCredentials(t *testing.T) {
	creds := StaticCredentials("abc")
	assert.Equal(t, "abc", creds.Token())

	// Subscribe is a no-op but must return a callable unsubscribe
	unsub := creds.Subscribe(func(string) { t.Fatal("static credentials must not notify") })
	unsub()
}

func TestWatchableCredentials_NotifiesOnChange(t *testing.T) {
	creds := NewWatchableCredentials("first")

	var got []string
	unsub := creds.Subscribe(func(token string) { got = append(got, token) })

	creds.Set("second")
	assert.Equal(t, "second", creds.Token())

	// Setting the same token again must not notify
	creds.Set("second")

	creds.Set("third")
	assert.Equal(t, []string{"second", "third"}, got)

	unsub()
	creds.Set("fourth")
	assert.Equal(t, []string{"second", "third"}, got)
}
