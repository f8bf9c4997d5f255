// Package apitest runs an in-memory FileVault API for tests. It speaks the
// same envelope format as the real server, issues short JWT access tokens
// and lets tests expire them to exercise session renewal.
package apitest

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Messages the server answers with. They match the real API's wording.
const (
	MsgInvalidCredentials = "Invalid credentials"
	MsgInvalidToken       = "Invalid or expired token"
	MsgInvalidRefresh     = "Invalid refresh token"
	MsgUserExists         = "User already exists"
	MsgFileNotFound       = "File not found"
	MsgFolderNotFound     = "Folder not found"
	MsgFolderExists       = "Folder already exists"
)

const (
	accessTTL     = 15 * time.Minute
	maxUploadSize = 32 << 20
)

type account struct {
	id       int
	username string
	email    string
	password string
	created  time.Time
}

type storedFile struct {
	id       int
	owner    int
	name     string
	folder   string
	mimeType string
	content  []byte
	uploaded time.Time
}

func (f *storedFile) key() string {
	return path.Join(f.folder, f.name)
}

type storedFolder struct {
	id     int
	owner  int
	name   string
	parent string
}

func (f *storedFolder) fullPath() string {
	return path.Join(f.parent, f.name)
}

type storedShare struct {
	id      int
	token   string
	fileID  int
	owner   int
	created time.Time
}

// Server is a running fake API. The zero value is not usable; call New.
type Server struct {
	*httptest.Server

	secret []byte

	mu       sync.Mutex
	nextID   int
	accounts map[int]*account
	access   map[string]int // access token -> account id
	refresh  map[string]int // refresh token -> account id
	files    map[int]*storedFile
	folders  map[int]*storedFolder
	shares   []*storedShare

	refreshCalls int
	requests     []string
}

// New starts a fake API and stops it when the test ends.
func New(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		secret:   []byte(uuid.NewString()),
		accounts: make(map[int]*account),
		access:   make(map[string]int),
		refresh:  make(map[string]int),
		files:    make(map[int]*storedFile),
		folders:  make(map[int]*storedFolder),
	}

	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)

	return s
}

// APIURL is the base URL clients should be configured with.
func (s *Server) APIURL() string {
	return s.URL + "/api"
}

// AddUser creates an account and returns its id.
func (s *Server) AddUser(username, email, password string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.addUserLocked(username, email, password)
}

func (s *Server) addUserLocked(username, email, password string) int {
	s.nextID++

	s.accounts[s.nextID] = &account{
		id:       s.nextID,
		username: username,
		email:    email,
		password: password,
		created:  time.Now().UTC().Truncate(time.Second),
	}

	return s.nextID
}

// ExpireAccessTokens invalidates every issued access token. Refresh tokens
// stay valid, so the next authenticated call must renew its session.
func (s *Server) ExpireAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.access = make(map[string]int)
}

// RevokeRefreshTokens invalidates every issued refresh token.
func (s *Server) RevokeRefreshTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refresh = make(map[string]int)
}

// RefreshCalls reports how many times the refresh endpoint was hit.
func (s *Server) RefreshCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.refreshCalls
}

// Requests returns "METHOD /path" for every API request received so far.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.requests...)
}

// FileContent returns the stored bytes of key for the given user.
func (s *Server) FileContent(userID int, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.fileByKeyLocked(userID, key)
	if f == nil {
		return nil, false
	}

	return append([]byte(nil), f.content...), true
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})

	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/refresh", s.handleRefresh)
	mux.HandleFunc("POST /api/auth/logout", s.authed(s.handleLogout))
	mux.HandleFunc("GET /api/auth/me", s.authed(s.handleMe))

	mux.HandleFunc("GET /api/files/list", s.authed(s.handleListFiles))
	mux.HandleFunc("POST /api/files/upload", s.authed(s.handleUpload))
	mux.HandleFunc("GET /api/files/download/{key}", s.authed(s.handleDownloadURL))
	mux.HandleFunc("GET /api/files/info/{key}", s.authed(s.handleFileInfo))
	mux.HandleFunc("DELETE /api/files/{key}", s.authed(s.handleDeleteFile))
	mux.HandleFunc("POST /api/files/share/{id}", s.authed(s.handleShare))
	mux.HandleFunc("GET /api/files/shares", s.authed(s.handleShares))

	mux.HandleFunc("POST /api/folders/create", s.authed(s.handleCreateFolder))
	mux.HandleFunc("GET /api/folders/list", s.authed(s.handleListFolders))
	mux.HandleFunc("GET /api/folders/info/{path}", s.authed(s.handleFolderInfo))
	mux.HandleFunc("DELETE /api/folders/{path}", s.authed(s.handleDeleteFolder))

	mux.HandleFunc("GET /blob/{owner}/{key}", s.handleBlob)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			s.mu.Lock()
			s.requests = append(s.requests, r.Method+" "+strings.TrimPrefix(r.URL.Path, "/api"))
			s.mu.Unlock()
		}

		mux.ServeHTTP(w, r)
	})
}

type authedHandler func(w http.ResponseWriter, r *http.Request, user *account)

// authed resolves the bearer token to an account or answers 401.
func (s *Server) authed(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

		s.mu.Lock()
		id, ok := s.access[token]
		user := s.accounts[id]
		s.mu.Unlock()

		if !ok || user == nil {
			fail(w, http.StatusUnauthorized, MsgInvalidToken)
			return
		}

		next(w, r, user)
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Identifier string `json:"identifier"`
		Password   string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		fail(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.accounts {
		if (a.username == body.Identifier || a.email == body.Identifier) && a.password == body.Password {
			writeJSON(w, http.StatusOK, ok(s.issueLocked(a)))
			return
		}
	}

	fail(w, http.StatusUnauthorized, MsgInvalidCredentials)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Username == "" || body.Password == "" {
		fail(w, http.StatusBadRequest, "Username, email and password are required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.accounts {
		if a.username == body.Username || a.email == body.Email {
			fail(w, http.StatusConflict, MsgUserExists)
			return
		}
	}

	id := s.addUserLocked(body.Username, body.Email, body.Password)
	writeJSON(w, http.StatusCreated, ok(s.issueLocked(s.accounts[id])))
}

// issueLocked mints a new token pair for a.
func (s *Server) issueLocked(a *account) map[string]any {
	accessToken := s.mintAccessLocked(a)

	refreshToken := uuid.NewString()
	s.refresh[refreshToken] = a.id

	return map[string]any{
		"accessToken":  accessToken,
		"refreshToken": refreshToken,
		"user":         userJSON(a),
	}
}

func (s *Server) mintAccessLocked(a *account) string {
	now := time.Now()

	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"sub":    a.username,
		"userId": a.id,
		"jti":    uuid.NewString(),
		"iat":    now.Unix(),
		"exp":    now.Add(accessTTL).Unix(),
	}).SignedString(s.secret)
	if err != nil {
		panic(fmt.Sprintf("apitest: signing token: %v", err))
	}

	s.access[token] = a.id

	return token
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		fail(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshCalls++

	id, found := s.refresh[body.RefreshToken]
	if !found || s.accounts[id] == nil {
		fail(w, http.StatusUnauthorized, MsgInvalidRefresh)
		return
	}

	// The refresh token is not rotated.
	writeJSON(w, http.StatusOK, ok(map[string]any{"accessToken": s.mintAccessLocked(s.accounts[id])}))
}

func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request, user *account) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for token, id := range s.access {
		if id == user.id {
			delete(s.access, token)
		}
	}

	for token, id := range s.refresh {
		if id == user.id {
			delete(s.refresh, token)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Logged out"})
}

func (s *Server) handleMe(w http.ResponseWriter, _ *http.Request, user *account) {
	writeJSON(w, http.StatusOK, ok(map[string]any{"user": userJSON(user)}))
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request, user *account) {
	folder := r.URL.Query().Get("path")

	s.mu.Lock()
	defer s.mu.Unlock()

	files := []map[string]any{}

	for _, f := range s.files {
		if f.owner == user.id && f.folder == folder {
			files = append(files, fileJSON(f))
		}
	}

	writeJSON(w, http.StatusOK, ok(map[string]any{
		"files":   files,
		"folders": s.foldersInLocked(user.id, folder),
	}))
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, user *account) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		fail(w, http.StatusBadRequest, "Invalid upload")
		return
	}

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		fail(w, http.StatusBadRequest, "No files uploaded")
		return
	}

	folder := r.FormValue("folderPath")
	uploaded := make([]map[string]any, 0, len(headers))

	for _, fh := range headers {
		content, err := readPart(fh.Open)
		if err != nil {
			fail(w, http.StatusBadRequest, "Invalid upload")
			return
		}

		s.mu.Lock()
		s.nextID++
		f := &storedFile{
			id:       s.nextID,
			owner:    user.id,
			name:     fh.Filename,
			folder:   folder,
			mimeType: fh.Header.Get("Content-Type"),
			content:  content,
			uploaded: time.Now().UTC().Truncate(time.Second),
		}
		s.files[f.id] = f
		uploaded = append(uploaded, fileJSON(f))
		s.mu.Unlock()
	}

	writeJSON(w, http.StatusCreated, ok(map[string]any{"files": uploaded}))
}

func readPart(open func() (multipart.File, error)) ([]byte, error) {
	f, err := open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return io.ReadAll(f)
}

func (s *Server) handleDownloadURL(w http.ResponseWriter, r *http.Request, user *account) {
	key := r.PathValue("key")

	s.mu.Lock()
	f := s.fileByKeyLocked(user.id, key)
	s.mu.Unlock()

	if f == nil {
		fail(w, http.StatusNotFound, MsgFileNotFound)
		return
	}

	link := fmt.Sprintf("%s/blob/%d/%s", s.URL, user.id, url.PathEscape(key))
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "downloadUrl": link})
}

func (s *Server) handleBlob(w http.ResponseWriter, r *http.Request) {
	var owner int
	if _, err := fmt.Sscanf(r.PathValue("owner"), "%d", &owner); err != nil {
		http.NotFound(w, r)
		return
	}

	s.mu.Lock()
	f := s.fileByKeyLocked(owner, r.PathValue("key"))
	s.mu.Unlock()

	if f == nil {
		http.Error(w, "NoSuchKey", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", f.mimeType)
	_, _ = w.Write(f.content) //nolint:errcheck // test server
}

func (s *Server) handleFileInfo(w http.ResponseWriter, r *http.Request, user *account) {
	s.mu.Lock()
	f := s.fileByKeyLocked(user.id, r.PathValue("key"))
	s.mu.Unlock()

	if f == nil {
		fail(w, http.StatusNotFound, MsgFileNotFound)
		return
	}

	writeJSON(w, http.StatusOK, ok(map[string]any{"file": fileJSON(f)}))
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request, user *account) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.fileByKeyLocked(user.id, r.PathValue("key"))
	if f == nil {
		fail(w, http.StatusNotFound, MsgFileNotFound)
		return
	}

	delete(s.files, f.id)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "File deleted"})
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request, user *account) {
	var fileID int
	if _, err := fmt.Sscanf(r.PathValue("id"), "%d", &fileID); err != nil {
		fail(w, http.StatusBadRequest, "Invalid file id")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, found := s.files[fileID]
	if !found || f.owner != user.id {
		fail(w, http.StatusNotFound, MsgFileNotFound)
		return
	}

	s.nextID++
	sh := &storedShare{
		id:      s.nextID,
		token:   uuid.NewString(),
		fileID:  f.id,
		owner:   user.id,
		created: time.Now().UTC().Truncate(time.Second),
	}
	s.shares = append(s.shares, sh)

	share := s.shareJSONLocked(sh)
	writeJSON(w, http.StatusCreated, ok(map[string]any{"shareUrl": share["shareUrl"], "share": share}))
}

func (s *Server) handleShares(w http.ResponseWriter, _ *http.Request, user *account) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shares := []map[string]any{}

	for _, sh := range s.shares {
		if sh.owner == user.id {
			shares = append(shares, s.shareJSONLocked(sh))
		}
	}

	writeJSON(w, http.StatusOK, ok(map[string]any{"shares": shares}))
}

func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request, user *account) {
	var body struct {
		Name string `json:"name"`
		Path string `json:"path"`
	}

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
		fail(w, http.StatusBadRequest, "Folder name is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.folderLocked(user.id, path.Join(body.Path, body.Name)) != nil {
		fail(w, http.StatusConflict, MsgFolderExists)
		return
	}

	s.nextID++
	f := &storedFolder{id: s.nextID, owner: user.id, name: body.Name, parent: body.Path}
	s.folders[f.id] = f

	writeJSON(w, http.StatusCreated, ok(map[string]any{"folder": folderJSON(f)}))
}

func (s *Server) handleListFolders(w http.ResponseWriter, r *http.Request, user *account) {
	s.mu.Lock()
	defer s.mu.Unlock()

	writeJSON(w, http.StatusOK, ok(map[string]any{
		"folders": s.foldersInLocked(user.id, r.URL.Query().Get("path")),
	}))
}

func (s *Server) handleFolderInfo(w http.ResponseWriter, r *http.Request, user *account) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.folderLocked(user.id, r.PathValue("path"))
	if f == nil {
		fail(w, http.StatusNotFound, MsgFolderNotFound)
		return
	}

	writeJSON(w, http.StatusOK, ok(map[string]any{"folder": folderJSON(f)}))
}

func (s *Server) handleDeleteFolder(w http.ResponseWriter, r *http.Request, user *account) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.folderLocked(user.id, r.PathValue("path"))
	if f == nil {
		fail(w, http.StatusNotFound, MsgFolderNotFound)
		return
	}

	delete(s.folders, f.id)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Folder deleted"})
}

func (s *Server) fileByKeyLocked(owner int, key string) *storedFile {
	for _, f := range s.files {
		if f.owner == owner && f.key() == key {
			return f
		}
	}

	return nil
}

func (s *Server) folderLocked(owner int, fullPath string) *storedFolder {
	for _, f := range s.folders {
		if f.owner == owner && f.fullPath() == fullPath {
			return f
		}
	}

	return nil
}

func (s *Server) foldersInLocked(owner int, parent string) []map[string]any {
	out := []map[string]any{}

	for _, f := range s.folders {
		if f.owner == owner && f.parent == parent {
			out = append(out, folderJSON(f))
		}
	}

	return out
}

func (s *Server) shareJSONLocked(sh *storedShare) map[string]any {
	out := map[string]any{
		"id":          sh.id,
		"shareUrl":    fmt.Sprintf("%s/s/%s", s.URL, sh.token),
		"accessCount": 0,
		"expiresAt":   nil,
		"createdAt":   sh.created,
	}

	if f, found := s.files[sh.fileID]; found {
		out["file"] = fileJSON(f)
	}

	return out
}

func userJSON(a *account) map[string]any {
	return map[string]any{
		"id":        a.id,
		"username":  a.username,
		"email":     a.email,
		"createdAt": a.created,
		"updatedAt": a.created,
	}
}

func fileJSON(f *storedFile) map[string]any {
	return map[string]any{
		"id":           f.id,
		"name":         f.name,
		"originalName": f.name,
		"size":         len(f.content),
		"mimeType":     f.mimeType,
		"s3Key":        fmt.Sprintf("users/%d/%s", f.owner, f.key()),
		"folderPath":   f.folder,
		"uploadedAt":   f.uploaded,
	}
}

func folderJSON(f *storedFolder) map[string]any {
	return map[string]any{"id": f.id, "name": f.name, "path": f.parent}
}

func ok(data any) map[string]any {
	return map[string]any{"success": true, "data": data}
}

func fail(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "message": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // test server
}
