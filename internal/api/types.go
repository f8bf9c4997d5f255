package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// envelope is the response wrapper every endpoint uses.
type envelope struct {
	Success     bool            `json:"success"`
	Data        json.RawMessage `json:"data"`
	Message     string          `json:"message"`
	Error       string          `json:"error"`
	DownloadURL string          `json:"downloadUrl"`
}

// serverMessage picks the human-readable text out of an envelope.
func (e *envelope) serverMessage() string {
	if e.Message != "" {
		return e.Message
	}

	return e.Error
}

// User is the server's identity record. The client reads a few convenience
// fields but keeps the raw JSON and re-encodes it verbatim, so the record is
// always replaced wholesale and never partially merged.
type User struct {
	ID        string
	Username  string
	Email     string
	CreatedAt time.Time
	UpdatedAt time.Time

	raw json.RawMessage
}

// UnmarshalJSON decodes the convenience fields and keeps the raw record.
// Only a non-object payload is an error: an id, name or timestamp in an
// unexpected shape leaves that field empty.
func (u *User) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	if fields == nil {
		return errors.New("api: user record is null")
	}

	*u = User{
		Username:  stringField(fields["username"]),
		Email:     stringField(fields["email"]),
		CreatedAt: parseTimestamp(fields["createdAt"]),
		UpdatedAt: parseTimestamp(fields["updatedAt"]),
		raw:       append(json.RawMessage(nil), data...),
	}

	var id ID
	if raw, ok := fields["id"]; ok && id.UnmarshalJSON(raw) == nil {
		u.ID = string(id)
	}

	return nil
}

// MarshalJSON returns the record exactly as the server sent it.
func (u User) MarshalJSON() ([]byte, error) {
	if len(u.raw) > 0 {
		return u.raw, nil
	}

	out := map[string]any{
		"id":       u.ID,
		"username": u.Username,
		"email":    u.Email,
	}

	if !u.CreatedAt.IsZero() {
		out["createdAt"] = u.CreatedAt
	}

	if !u.UpdatedAt.IsZero() {
		out["updatedAt"] = u.UpdatedAt
	}

	return json.Marshal(out)
}

func stringField(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) != nil {
		return ""
	}

	return s
}

// timestampLayouts are the string forms the server is known to emit.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02",
}

// parseTimestamp reads a timestamp as an ISO-style string or as Unix
// milliseconds. Anything else yields the zero time.
func parseTimestamp(raw json.RawMessage) time.Time {
	if len(raw) == 0 {
		return time.Time{}
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		var n json.Number
		if json.Unmarshal(raw, &n) != nil {
			return time.Time{}
		}

		ms, err := n.Int64()
		if err != nil {
			return time.Time{}
		}

		return time.UnixMilli(ms).UTC()
	}

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}

	return time.Time{}
}

// AuthResult is the payload of a successful login or registration.
type AuthResult struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	User         *User  `json:"user"`
}

// Registration is the body of POST /auth/register.
type Registration struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// tokenPair is the payload of POST /auth/refresh. RefreshToken is optional.
type tokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// ID is a server identifier. The API emits both numeric and string ids;
// either decodes to its decimal or literal text.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*id = ""
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = ID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("api: id must be a string or number, got %s", data)
	}

	*id = ID(n.String())

	return nil
}

func (id ID) String() string {
	return string(id)
}

// File is a stored file as listed by the API.
type File struct {
	ID           ID        `json:"id"`
	Name         string    `json:"name"`
	OriginalName string    `json:"originalName"`
	Size         int64     `json:"size"`
	MimeType     string    `json:"mimeType"`
	StoragePath  string    `json:"s3Key"`
	FolderPath   string    `json:"folderPath"`
	UploadedAt   time.Time `json:"uploadedAt"`
}

// DisplayName prefers the name the file was uploaded with.
func (f File) DisplayName() string {
	if f.OriginalName != "" {
		return f.OriginalName
	}

	return f.Name
}

// Key returns the per-user object key used by the download, info and delete
// endpoints: the storage path without its leading owner prefix
// ("users/<id>/docs/a.txt" -> "docs/a.txt").
func (f File) Key() string {
	parts := strings.Split(f.StoragePath, "/")
	if len(parts) <= 2 {
		return f.StoragePath
	}

	return strings.Join(parts[2:], "/")
}

// UnmarshalJSON decodes a file, tolerating an upload time in any form.
func (f *File) UnmarshalJSON(data []byte) error {
	type plain File

	var w struct {
		plain
		UploadedAt json.RawMessage `json:"uploadedAt"`
	}

	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*f = File(w.plain)
	f.UploadedAt = parseTimestamp(w.UploadedAt)

	return nil
}

// Folder is a virtual folder.
type Folder struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
	Path string `json:"path"`
}

// Listing is the content of one folder.
type Listing struct {
	Files   []File   `json:"files"`
	Folders []Folder `json:"folders"`
}

// Share is a public link to a file.
type Share struct {
	ID          ID         `json:"id"`
	URL         string     `json:"shareUrl"`
	AccessCount int        `json:"accessCount"`
	ExpiresAt   *time.Time `json:"expiresAt"`
	CreatedAt   time.Time  `json:"createdAt"`
	File        *File      `json:"file"`
}

// UnmarshalJSON decodes a share, tolerating timestamps in any form. An
// unreadable expiry is treated as none.
func (s *Share) UnmarshalJSON(data []byte) error {
	type plain Share

	var w struct {
		plain
		ExpiresAt json.RawMessage `json:"expiresAt"`
		CreatedAt json.RawMessage `json:"createdAt"`
	}

	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*s = Share(w.plain)
	s.CreatedAt = parseTimestamp(w.CreatedAt)
	s.ExpiresAt = nil

	if t := parseTimestamp(w.ExpiresAt); !t.IsZero() {
		s.ExpiresAt = &t
	}

	return nil
}
