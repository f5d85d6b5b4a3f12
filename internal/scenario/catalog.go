package scenario

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/patrickjm/joinflow/internal/browser"
	"github.com/patrickjm/joinflow/internal/datablob"
	"github.com/patrickjm/joinflow/internal/page"
	"github.com/patrickjm/joinflow/internal/session"
)

// SampleAgreementURL is a membership agreement link captured from UAT.
const SampleAgreementURL = "https://www.uat.orangetheory.com/en-us/membership-agreement?studioid=bf60d4c9-f9c3-4e5c-97f2-fe1118531493&data=ewogICJwZXJzb25faWQiOiAib3RmcWEzMTktYWE0OC00MmZhLTg4ODgtNTJmZjJlOTE0ZWEyMTk5IiwKICAibWVtYmVyX2VtYWlsIjogIm90ZnFhc0BvdXRsaWFudC5jb20iLAogICJtZW1iZXJfZmlyc3RfbmFtZSI6ICJPdXRsaWFudCIsCiAgIm1lbWJlcl9sYXN0X25hbWUiOiAiVGVzdGVyIiwKICAibWVtYmVyX3Bob25lX251bWJlciI6ICI0Mzc1NTUwMTIzIiwKICAic3R1ZGlvX2lkIjogImJmNjBkNGM5LWY5YzMtNGU1Yy05N2YyLWZlMTExODUzMTQ5MyIsCiAgIm1ib19zdHVkaW9faWQiOiAiNTcyOTY3OCIsCiAgIm1ib19jbGllbnRfaWQiOiAiOTg3NjUiLAogICJtYm9fY29udHJhY3RfaWQiOiAiMTIzNCIsCiAgIm1ib19jbGllbnRfY29udHJhY3RfaWQiOiAiMTIzNCIsCiAgIm1lbWJlcl9zdHJlZXRfYWRkcmVzcyI6ICIxMjMgTWFpbiBTdHJlZXQiLAogICJtZW1iZXJfY2l0eSI6ICJCb3N0b24iLAogICJtZW1iZXJfc3RhdGUiOiAiTUEiLAogICJtZW1iZXJfemlwIjogIjAyMTA4IiwKICAiY3JlZGl0X2NhcmRfbGFzdDQiOiAiMTIzNCIsCiAgImNyZWRpdF9jYXJkX3R5cGUiOiAiRElTQ09WRVIiLAogICJwcm9kdWN0X25hbWUiOiAiT25saW5lIEVsaXRlIEZhbWlseSBNZW1iZXJzaGlwIiwKICAicHJvZHVjdF90eXBlIjogIk1lbWJlcnNoaXAiLAogICJwcm9kdWN0X2NhdGVnb3J5IjogIkVsaXRlIiwKICAiaGFzX3Byb21vdGlvbiI6IHRydWUsCiAgImFkZF9vbiI6IHsKICAgICJ0eXBlIjogIkZBTUlMWSIsCiAgICAidmFsdWUiOiAiSm9obiBTdW1taXQiCn0sCiAgImNoZWNrX2lkIjp0cnVlLAogICJjb250cmFjdF9zdGFydF9kYXRlIjoiMjAzMi0wMi0yNVQwMDowMDowMCJ9"

func Catalog() []Scenario {
	return []Scenario{
		{Name: "studio-info", Description: "Pick the first visible studio and check the booking page shows it", Run: studioInfo},
		{Name: "required-fields", Description: "Submitting the intro form empty shows a required message per field", Run: requiredFields},
		{Name: "sms-terms-tab", Description: "The SMS & MMS terms link opens a new tab", Run: smsTermsTab},
		{Name: "blob-decode", Description: "Decode the data blob of a captured agreement link", NoBrowser: true, Run: blobDecode},
		{Name: "blob-validate", Description: "A generated data blob reaches the /validate request unchanged", Run: blobValidate},
	}
}

// Lookup returns the named scenarios in catalog order; no names means all.
func Lookup(names ...string) ([]Scenario, error) {
	all := Catalog()
	if len(names) == 0 {
		return all, nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[strings.TrimSpace(n)] = true
	}
	out := make([]Scenario, 0, len(names))
	for _, sc := range all {
		if want[sc.Name] {
			out = append(out, sc)
			delete(want, sc.Name)
		}
	}
	for n := range want {
		return nil, fmt.Errorf("%w: %s", ErrUnknownScenario, n)
	}
	return out, nil
}

func studioInfo(env *Env) error {
	studios, err := env.Studio.OpenBookingForm()
	if err != nil {
		return err
	}
	selected, err := env.Studio.SelectedStudio()
	if err != nil {
		return err
	}
	if selected != studios[0].Name {
		return fmt.Errorf("%w: booking page shows studio %q, want %q", ErrAssertion, selected, studios[0].Name)
	}
	env.Logger.Info("studio selected", zap.String("studio", selected), zap.Int("listed", len(studios)))
	return nil
}

func requiredFields(env *Env) error {
	if _, err := env.Studio.OpenBookingForm(); err != nil {
		return err
	}
	return env.Studio.WithinIframe("bookClassIframe", func() error {
		if err := env.Studio.ClickNext(); err != nil {
			return err
		}
		got, err := env.Studio.FieldErrors(page.RequiredFields...)
		if err != nil {
			return err
		}
		for _, field := range page.RequiredFields {
			if got[field] != page.FieldRequired {
				return fmt.Errorf("%w: %s error is %q, want %q", ErrAssertion, field, got[field], page.FieldRequired)
			}
		}
		return nil
	})
}

func smsTermsTab(env *Env) error {
	if _, err := env.Studio.OpenBookingForm(); err != nil {
		return err
	}
	before, err := env.Session.TabCount()
	if err != nil {
		return err
	}
	if before != 1 {
		return fmt.Errorf("%w: %d tabs open before the click, want 1", ErrAssertion, before)
	}
	var after int
	err = env.Studio.WithinIframe("bookClassIframe", func() error {
		after, err = env.Studio.OpenSMSTerms()
		return err
	})
	if err != nil {
		return err
	}
	if after != 2 {
		return fmt.Errorf("%w: %d tabs open after the click, want 2", ErrAssertion, after)
	}
	return nil
}

func blobDecode(_ *Env) error {
	var m datablob.Membership
	if err := datablob.FromURL(SampleAgreementURL, &m); err != nil {
		return err
	}
	checks := []struct{ field, got, want string }{
		{"member_first_name", m.MemberFirstName, "Outliant"},
		{"member_last_name", m.MemberLastName, "Tester"},
		{"member_email", m.MemberEmail, "otfqas@outliant.com"},
	}
	for _, c := range checks {
		if c.got != c.want {
			return fmt.Errorf("%w: %s is %q, want %q", ErrAssertion, c.field, c.got, c.want)
		}
	}
	if !m.HasPromotion {
		return fmt.Errorf("%w: has_promotion decoded as false", ErrAssertion)
	}
	return nil
}

func blobValidate(env *Env) error {
	s := env.Session
	if !s.Capabilities().CaptureNetwork {
		return fmt.Errorf("blob-validate needs network capture, which %s sessions do not record", s.Capabilities().Kind)
	}
	want := datablob.SampleMembership()
	target, err := datablob.WithBlob(env.BaseURL+page.AgreementPath+"?location_id="+want.StudioID, want)
	if err != nil {
		return err
	}
	if err := s.Navigate(target); err != nil {
		return err
	}
	entry, err := awaitRequest(env, "POST", "/validate")
	if err != nil {
		return err
	}
	var payload struct {
		Data datablob.Membership `json:"data"`
	}
	if err := json.Unmarshal([]byte(entry.PostData), &payload); err != nil {
		return fmt.Errorf("decode /validate payload: %w", err)
	}
	if payload.Data.MemberFirstName != want.MemberFirstName {
		return fmt.Errorf("%w: /validate first name %q, want %q", ErrAssertion, payload.Data.MemberFirstName, want.MemberFirstName)
	}
	if payload.Data.MemberLastName != want.MemberLastName {
		return fmt.Errorf("%w: /validate last name %q, want %q", ErrAssertion, payload.Data.MemberLastName, want.MemberLastName)
	}
	return nil
}

// awaitRequest waits for a request with a body whose URL contains path.
func awaitRequest(env *Env, method, path string) (browser.NetworkEntry, error) {
	entry, err := env.Session.AwaitRequest(func(e browser.NetworkEntry) bool {
		return e.Method == method && strings.Contains(e.URL, path) && e.PostData != ""
	})
	if errors.Is(err, session.ErrRequestNotSeen) {
		return entry, fmt.Errorf("%w: no %s %s: %w", ErrAssertion, method, path, err)
	}
	return entry, err
}
