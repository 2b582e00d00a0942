package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"gitlab.com/dirk.krummacker/qrinfo-service/internal/qr"
	"gitlab.com/dirk.krummacker/qrinfo-service/internal/registry"
	"gitlab.com/dirk.krummacker/qrinfo-service/internal/store"
	"gitlab.com/dirk.krummacker/qrinfo-service/pkg/model"
)

const commandHelp = `Commands:
  list                    list all persons, newest first (admin)
  get <id>                show one person
  add [fields]            create a person (admin)
  edit <id> [fields]      change the given fields of a person (admin)
  delete <id>             delete a person (admin)
  qr <id> [-out] [-size]  write the QR code of a person as PNG
  bench [-sizes]          measure the record store (admin)

Fields: -name -last-name -personal-code -phone -address -info -disease -status -emergency-note`

// cli executes the commands of the client against a registry.
type cli struct {
	registry *registry.Registry
	qr       qr.Generator
	out      io.Writer
	now      func() time.Time
}

func (c *cli) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("no command given\n\n" + commandHelp)
	}
	command, args := args[0], args[1:]
	switch command {
	case "list":
		return c.list(ctx)
	case "get":
		return c.get(ctx, args)
	case "add":
		return c.add(ctx, args)
	case "edit":
		return c.edit(ctx, args)
	case "delete":
		return c.remove(ctx, args)
	case "qr":
		return c.writeQRCode(ctx, args)
	case "bench":
		return c.bench(ctx, args)
	default:
		return fmt.Errorf("unknown command %q\n\n%s", command, commandHelp)
	}
}

// describe turns an error into the message shown to the user. Storage failures are only shown
// as a generic message, their details go to the log.
func describe(err error) string {
	var validationErr *model.ValidationError
	var storageErr *store.StorageError
	switch {
	case errors.Is(err, registry.ErrNotAdmin):
		return "Please log in as admin (-password or ADMIN_PASSWORD)."
	case errors.Is(err, registry.ErrNotFound):
		return "Person not found."
	case errors.As(err, &validationErr):
		return "Please fill in all required fields: " + validationErr.Error()
	case errors.As(err, &storageErr):
		return "The records could not be accessed. Please try again later. (" + storageErr.Error() + ")"
	default:
		return err.Error()
	}
}

func (c *cli) list(ctx context.Context) error {
	persons, err := c.registry.List(ctx)
	if err != nil {
		return err
	}
	if len(persons) == 0 {
		fmt.Fprintln(c.out, "No persons found.")
		return nil
	}
	fmt.Fprintf(c.out, "%-24s %-16s %-16s %-14s %-18s %s\n", "ID", "NAME", "LAST NAME", "CODE", "PHONE", "CREATED")
	for _, p := range persons {
		fmt.Fprintf(c.out, "%-24s %-16s %-16s %-14s %-18s %s\n", p.ID, p.Name, p.LastName, p.PersonalCode, p.PhoneNumber, p.CreatedAt)
	}
	return nil
}

// singleID returns the id argument of commands that take exactly one.
func singleID(command string, args []string) (string, []string, error) {
	if len(args) == 0 || args[0] == "" {
		return "", nil, fmt.Errorf("usage: %s <id>", command)
	}
	return args[0], args[1:], nil
}

func (c *cli) get(ctx context.Context, args []string) error {
	id, _, err := singleID("get", args)
	if err != nil {
		return err
	}
	p, err := c.registry.View(ctx, id)
	if err != nil {
		return err
	}
	return c.printPerson(p)
}

func (c *cli) printPerson(p *model.Person) error {
	data, err := json.MarshalIndent(p, "", "    ")
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, string(data))
	return nil
}

// formFlags registers one flag per form field. The flags start with the values of form.
func formFlags(fs *flag.FlagSet, form *registry.Form) {
	fs.StringVar(&form.Name, "name", form.Name, "the first name")
	fs.StringVar(&form.LastName, "last-name", form.LastName, "the last name")
	fs.StringVar(&form.PersonalCode, "personal-code", form.PersonalCode, "the personal code")
	fs.StringVar(&form.PhoneNumber, "phone", form.PhoneNumber, "the phone number")
	fs.StringVar(&form.Address, "address", form.Address, "the address")
	fs.StringVar(&form.AdditionalInfo, "info", form.AdditionalInfo, "additional information")
	fs.StringVar(&form.DiseaseOrProblem, "disease", form.DiseaseOrProblem, "disease or health problem")
	fs.StringVar(&form.Status, "status", form.Status, "the current status")
	fs.StringVar(&form.EmergencyNote, "emergency-note", form.EmergencyNote, "a note for emergency services")
}

func (c *cli) add(ctx context.Context, args []string) error {
	var form registry.Form
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	fs.SetOutput(c.out)
	formFlags(fs, &form)
	if err := fs.Parse(args); err != nil {
		return err
	}
	p, err := c.registry.Add(ctx, form)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Person %s created.\n", p.ID)
	return nil
}

// edit prefills the form with the stored values so that only the given flags change a field.
// Passing an empty value clears an optional field.
func (c *cli) edit(ctx context.Context, args []string) error {
	id, rest, err := singleID("edit", args)
	if err != nil {
		return err
	}
	existing, err := c.registry.View(ctx, id)
	if err != nil {
		return err
	}
	form := registry.FormOf(*existing)
	fs := flag.NewFlagSet("edit", flag.ContinueOnError)
	fs.SetOutput(c.out)
	formFlags(fs, &form)
	if err := fs.Parse(rest); err != nil {
		return err
	}
	if _, err := c.registry.Edit(ctx, id, form); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Person %s updated.\n", id)
	return nil
}

func (c *cli) remove(ctx context.Context, args []string) error {
	id, _, err := singleID("delete", args)
	if err != nil {
		return err
	}
	if err := c.registry.Remove(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Person %s deleted.\n", id)
	return nil
}

func (c *cli) writeQRCode(ctx context.Context, args []string) error {
	id, rest, err := singleID("qr", args)
	if err != nil {
		return err
	}
	fs := flag.NewFlagSet("qr", flag.ContinueOnError)
	fs.SetOutput(c.out)
	outPtr := fs.String("out", "", "the PNG file to write, qr-<name>-<last name>-<timestamp>.png if empty")
	sizePtr := fs.Int("size", qr.DefaultSize, "the edge length in pixels")
	if err := fs.Parse(rest); err != nil {
		return err
	}
	p, err := c.registry.View(ctx, id)
	if err != nil {
		return err
	}
	png, err := c.qr.PNG(p.ID, *sizePtr)
	if err != nil {
		return err
	}
	fileName := *outPtr
	if fileName == "" {
		fileName = qr.FileName(*p, c.now())
	}
	if err := os.WriteFile(fileName, png, 0o644); err != nil {
		return fmt.Errorf("writing QR code: %w", err)
	}
	fmt.Fprintf(c.out, "QR code for %s written to %s.\n", c.qr.URL(p.ID), fileName)
	return nil
}
