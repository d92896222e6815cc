// Package kyc submits the wallet registration details and proof documents.
package kyc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/medpass/medpass/internal/api"
	"github.com/medpass/medpass/internal/logging"
	"github.com/medpass/medpass/internal/notification"
	"github.com/medpass/medpass/internal/session"
)

// MaxDocumentSize is the upload limit for each proof file.
const MaxDocumentSize = 2 << 20

const defaultProofType = "PANCARD"

var (
	ErrNoDocuments  = errors.New("select at least one document to upload")
	ErrFileTooLarge = errors.New("each file must be under 2 MB")
)

// MissingFieldsError lists required fields left blank.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return "please fill in all required fields: " + strings.Join(e.Fields, ", ")
}

// Client is the part of the API KYC needs.
type Client interface {
	RegisterUser(ctx context.Context, creds session.Credentials, fields url.Values) (api.Ack, error)
	UpgradeKYC(ctx context.Context, creds session.Credentials, fields url.Values, files []api.File) (api.Ack, error)
}

// Details is the registration form.
type Details struct {
	FirstName         string
	MiddleName        string
	LastName          string
	MothersMaidenName string
	DOB               string
	Email             string
	Mobile            string
	Gender            string
	State             string
	City              string
	Address           string
	Pincode           string
	IDProofType       string
	IDProofNo         string
	AddProofType      string
	AddProofNo        string
}

// DetailsFromProfile prefills the form from the cached profile. An Aadhaar
// address proof number is left blank; it is restored on submit.
func DetailsFromProfile(p session.Profile) Details {
	d := Details{
		FirstName:         p.String("name"),
		MiddleName:        p.String("middlename"),
		LastName:          p.String("lastname"),
		MothersMaidenName: p.String("mothers_maiden_name"),
		DOB:               p.String("dob"),
		Email:             p.String("email"),
		Mobile:            p.String("mobile"),
		Gender:            p.String("gender"),
		State:             p.String("state"),
		City:              p.String("city"),
		Address:           p.String("address"),
		Pincode:           p.String("pincode"),
		IDProofType:       orDefault(p.String("id_proof_type"), defaultProofType),
		IDProofNo:         p.String("id_proof_no"),
		AddProofType:      orDefault(p.String("add_proof_type"), defaultProofType),
		AddProofNo:        p.String("add_proof_no"),
	}
	if isAadhaar(d.AddProofType) {
		d.AddProofNo = ""
	}
	return d
}

func (d Details) values() url.Values {
	return url.Values{
		"firstname":           {d.FirstName},
		"middlename":          {d.MiddleName},
		"lastname":            {d.LastName},
		"mothers_maiden_name": {d.MothersMaidenName},
		"dob":                 {d.DOB},
		"email":               {d.Email},
		"mobile":              {d.Mobile},
		"gender":              {d.Gender},
		"state":               {d.State},
		"city":                {d.City},
		"address":             {d.Address},
		"pincode":             {d.Pincode},
		"id_proof_type":       {d.IDProofType},
		"id_proof_no":         {d.IDProofNo},
		"add_proof_type":      {d.AddProofType},
		"add_proof_no":        {d.AddProofNo},
	}
}

// Validate checks required fields. storedAddProofNo is the address proof
// number already on file; an Aadhaar proof may omit it.
func (d Details) Validate(storedAddProofNo string) error {
	required := []struct{ name, value string }{
		{"firstname", d.FirstName},
		{"lastname", d.LastName},
		{"dob", d.DOB},
		{"email", d.Email},
		{"mobile", d.Mobile},
		{"state", d.State},
		{"city", d.City},
		{"address", d.Address},
		{"pincode", d.Pincode},
		{"id_proof_no", d.IDProofNo},
		{"gender", d.Gender},
	}
	var missing []string
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if d.AddProofNo == "" && !(isAadhaar(d.AddProofType) && storedAddProofNo != "") {
		missing = append(missing, "add_proof_no")
	}
	if len(missing) > 0 {
		return &MissingFieldsError{Fields: missing}
	}
	return nil
}

// Document is one proof file to upload.
type Document struct {
	Name        string
	ContentType string
	Data        []byte
}

// ReadDocument loads a proof file from disk, enforcing the size limit.
func ReadDocument(path string) (*Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > MaxDocumentSize {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), ErrFileTooLarge)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &Document{Name: filepath.Base(path), ContentType: http.DetectContentType(data), Data: data}, nil
}

// Documents is the KYC upgrade request.
type Documents struct {
	AddressProof *Document
	IDProof      *Document

	AddProofType      string
	AddProofNo        string
	IDProofType       string
	IDProofNo         string
	MiddleName        string
	MothersMaidenName string
	Email             string
}

// Service submits KYC data for the logged-in user.
type Service struct {
	client   Client
	store    *session.Store
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewService constructs a KYC service.
func NewService(client Client, store *session.Store, notifier notification.Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	if notifier == nil {
		notifier = notification.NewLoggerNotifier(logger)
	}
	return &Service{client: client, store: store, notifier: notifier, logger: logger}
}

// Status returns the KYC status from the cached profile.
func (s *Service) Status(ctx context.Context) Status {
	sess := s.store.Get(ctx)
	if sess == nil {
		return ""
	}
	return StatusOf(sess.Profile)
}

// UpdateProfile validates and submits the registration form.
func (s *Service) UpdateProfile(ctx context.Context, d Details) (api.Ack, error) {
	sess := s.store.Get(ctx)
	if !sess.Usable() {
		return api.Ack{}, api.ErrMissingCredentials
	}
	stored := sess.Profile.String("add_proof_no")
	if d.AddProofType == "" {
		d.AddProofType = defaultProofType
	}
	if d.IDProofType == "" {
		d.IDProofType = defaultProofType
	}
	if err := d.Validate(stored); err != nil {
		return api.Ack{}, err
	}
	if d.AddProofNo == "" && isAadhaar(d.AddProofType) {
		d.AddProofNo = stored
	}

	ack, err := s.client.RegisterUser(ctx, sess.Credentials(), d.values())
	if err != nil {
		s.logger.Warn("profile update failed", "reason", api.ReasonOf(err), "error", err)
		s.notify(ctx, notification.KindServerError, api.UserMessage(err, "Failed to update profile"))
		return ack, err
	}
	s.notify(ctx, notification.KindProfileUpdated, "Profile updated successfully!")
	return ack, nil
}

// UploadDocuments sends whichever proof files are present.
func (s *Service) UploadDocuments(ctx context.Context, docs Documents) (api.Ack, error) {
	if docs.AddressProof == nil && docs.IDProof == nil {
		return api.Ack{}, ErrNoDocuments
	}
	var files []api.File
	for _, f := range []struct {
		field string
		doc   *Document
	}{{"address_proof", docs.AddressProof}, {"id_proof_file", docs.IDProof}} {
		if f.doc == nil {
			continue
		}
		if len(f.doc.Data) > MaxDocumentSize {
			return api.Ack{}, fmt.Errorf("%s: %w", f.doc.Name, ErrFileTooLarge)
		}
		files = append(files, api.File{Field: f.field, Name: f.doc.Name, ContentType: f.doc.ContentType, Data: f.doc.Data})
	}

	sess := s.store.Get(ctx)
	if !sess.Usable() {
		return api.Ack{}, api.ErrMissingCredentials
	}
	addProofNo := docs.AddProofNo
	if addProofNo == "" {
		addProofNo = sess.Profile.String("add_proof_no")
	}
	fields := url.Values{
		"add_proof_type":      {docs.AddProofType},
		"add_proof_no":        {addProofNo},
		"id_proof_type":       {docs.IDProofType},
		"id_proof_no":         {docs.IDProofNo},
		"middlename":          {docs.MiddleName},
		"mothers_maiden_name": {docs.MothersMaidenName},
		"email":               {docs.Email},
	}
	ack, err := s.client.UpgradeKYC(ctx, sess.Credentials(), fields, files)
	if err != nil {
		s.notify(ctx, notification.KindServerError, api.UserMessage(err, "Invalid document format"))
		return ack, err
	}
	s.notify(ctx, notification.KindProfileUpdated, orDefault(ack.Message.String(), "KYC documents uploaded"))
	return ack, nil
}

func (s *Service) notify(ctx context.Context, kind, body string) {
	if err := s.notifier.Send(ctx, notification.Message{Kind: kind, Body: body}); err != nil {
		s.logger.Warn("notify", "kind", kind, "error", err)
	}
}

func isAadhaar(proofType string) bool {
	return proofType == "AadhaarCard" || proofType == "Aadhar"
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
