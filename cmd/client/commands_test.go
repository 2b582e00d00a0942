package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/dirk.krummacker/qrinfo-service/internal/auth"
	"gitlab.com/dirk.krummacker/qrinfo-service/internal/qr"
	"gitlab.com/dirk.krummacker/qrinfo-service/internal/registry"
	"gitlab.com/dirk.krummacker/qrinfo-service/internal/store"
	"gitlab.com/dirk.krummacker/qrinfo-service/pkg/model"
)

// newCLI returns a client on an empty in-memory store together with that store, logged in as
// admin if admin is true.
func newCLI(t *testing.T, admin bool) (*cli, *bytes.Buffer, *store.LocalStore) {
	session := auth.NewGate("adminadmin").NewSession()
	if admin {
		require.True(t, session.Login("adminadmin"))
	}
	s := store.NewLocalStore(store.NewMemoryMedium())
	out := &bytes.Buffer{}
	return &cli{
		registry: registry.New(s, session),
		qr:       qr.Generator{BaseURL: "https://qr.example.org"},
		out:      out,
		now:      func() time.Time { return time.UnixMilli(1709373600000) },
	}, out, s
}

var createdPattern = regexp.MustCompile(`Person (\S+) created\.`)

// addPerson runs the add command and returns the id of the new person.
func addPerson(t *testing.T, c *cli, out *bytes.Buffer, args ...string) string {
	out.Reset()
	require.NoError(t, c.run(context.Background(), append([]string{"add"}, args...)))
	match := createdPattern.FindStringSubmatch(out.String())
	require.Len(t, match, 2)
	out.Reset()
	return match[1]
}

// TestAddGetEditDelete runs the commands for the whole life cycle of a person.
func TestAddGetEditDelete(t *testing.T) {
	ctx := context.Background()
	c, out, _ := newCLI(t, true)
	id := addPerson(t, c, out, "-name=Erika", "-last-name=Mustermann", "-personal-code=PC1",
		"-phone=+49 0815 4711", "-status=stable")

	require.NoError(t, c.run(ctx, []string{"get", id}))
	assert.Contains(t, out.String(), `"name": "Erika"`)
	assert.Contains(t, out.String(), `"status": "stable"`)
	assert.Contains(t, out.String(), `"address": null`)

	out.Reset()
	require.NoError(t, c.run(ctx, []string{"edit", id, "-name=Rudi", "-status="}))
	assert.Equal(t, "Person "+id+" updated.\n", out.String())
	p, err := c.registry.View(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Rudi", p.Name)
	assert.Equal(t, "Mustermann", p.LastName)
	assert.Nil(t, p.Status)

	out.Reset()
	require.NoError(t, c.run(ctx, []string{"delete", id}))
	_, err = c.registry.View(ctx, id)
	assert.True(t, errors.Is(err, registry.ErrNotFound))
}

// TestList verifies that the list shows the newest person first.
func TestList(t *testing.T) {
	c, out, s := newCLI(t, true)
	require.NoError(t, c.run(context.Background(), []string{"list"}))
	assert.Equal(t, "No persons found.\n", out.String())

	for _, p := range []model.Person{
		{ID: "old", Name: "Aaron", LastName: "A", PersonalCode: "1", PhoneNumber: "1", CreatedAt: "2024-01-01T00:00:00Z"},
		{ID: "new", Name: "Berta", LastName: "B", PersonalCode: "2", PhoneNumber: "2", CreatedAt: "2024-02-01T00:00:00Z"},
	} {
		require.NoError(t, s.Save(context.Background(), &p))
	}
	out.Reset()
	require.NoError(t, c.run(context.Background(), []string{"list"}))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.True(t, strings.HasPrefix(lines[1], "new"))
	assert.True(t, strings.HasPrefix(lines[2], "old"))
}

// TestQRCode verifies that the QR code is written to the default file name.
func TestQRCode(t *testing.T) {
	c, out, _ := newCLI(t, true)
	id := addPerson(t, c, out, "-name=Erika", "-last-name=Mustermann", "-personal-code=PC1", "-phone=1")

	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(wd)

	require.NoError(t, c.run(context.Background(), []string{"qr", id, "-size=64"}))
	assert.Contains(t, out.String(), "https://qr.example.org/view/"+id)
	png, err := os.ReadFile(filepath.Join(dir, "qr-Erika-Mustermann-1709373600000.png"))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
}

// TestErrors verifies the messages for the typical mistakes.
func TestErrors(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newCLI(t, false)

	err := c.run(ctx, []string{"list"})
	assert.True(t, errors.Is(err, registry.ErrNotAdmin))
	assert.Equal(t, "Please log in as admin (-password or ADMIN_PASSWORD).", describe(err))

	err = c.run(ctx, []string{"get", "999"})
	assert.Equal(t, "Person not found.", describe(err))

	err = c.run(ctx, []string{"get"})
	assert.EqualError(t, err, "usage: get <id>")

	err = c.run(ctx, []string{"frobnicate"})
	assert.Contains(t, err.Error(), `unknown command "frobnicate"`)

	admin, _, _ := newCLI(t, true)
	err = admin.run(ctx, []string{"add", "-name=Erika"})
	assert.Equal(t, "Please fill in all required fields: missing required fields: lastName, personalCode, phoneNumber",
		describe(err))
}

// TestBench verifies that a benchmark round leaves no records behind.
func TestBench(t *testing.T) {
	ctx := context.Background()
	c, out, s := newCLI(t, true)
	require.NoError(t, c.run(ctx, []string{"bench", "-sizes=3,5"}))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.Len(t, strings.Fields(lines[2]), 5)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(lines[3]), "5 "))

	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	assert.Error(t, c.run(ctx, []string{"bench", "-sizes=0"}))
}
