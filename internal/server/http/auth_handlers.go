package httpserver

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"

	"github.com/scholarvault/scholarvault-service/internal/auth"
	"github.com/scholarvault/scholarvault-service/internal/domain"
	"github.com/scholarvault/scholarvault-service/internal/observability"
	"github.com/scholarvault/scholarvault-service/internal/storage"
)

var profileImageExtensions = []string{"jpg", "jpeg", "png", "webp"}

type registerRequest struct {
	Email    string  `json:"email" validate:"required,email,max=320"`
	Password string  `json:"password" validate:"required,min=8,max=72"`
	Username *string `json:"username" validate:"omitempty,min=1,max=100"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type updateProfileRequest struct {
	Username *string `json:"username" validate:"omitempty,max=100"`
}

// register handles POST /api/auth/register.
func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	hash, err := s.deps.Passwords.Hash(req.Password)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to hash password")
		writeError(w, http.StatusInternalServerError, "Failed to hash password")
		return
	}

	user, err := s.deps.Users.Create(r.Context(), &domain.User{
		Email:        strings.TrimSpace(req.Email),
		PasswordHash: hash,
		Username:     req.Username,
	})
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			writeError(w, http.StatusConflict, "Email already exists")
			return
		}
		s.logger.Error().Err(err).Msg("failed to create user")
		writeError(w, http.StatusInternalServerError, "Failed to create user")
		return
	}

	s.writeAuth(w, http.StatusCreated, user)
}

// login handles POST /api/auth/login.
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	user, err := s.deps.Users.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrInvalidInput) {
			writeError(w, http.StatusUnauthorized, "Invalid email or password")
			return
		}
		s.logger.Error().Err(err).Msg("failed to look up user")
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}

	if err := s.deps.Passwords.Compare(user.PasswordHash, req.Password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			writeError(w, http.StatusUnauthorized, "Invalid email or password")
			return
		}
		s.logger.Error().Err(err).Msg("failed to verify password")
		writeError(w, http.StatusInternalServerError, "Failed to verify password")
		return
	}

	s.writeAuth(w, http.StatusOK, user)
}

func (s *Server) writeAuth(w http.ResponseWriter, status int, user *domain.User) {
	token, err := s.deps.Tokens.Issue(user.ID, user.Email)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to issue token")
		writeError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}
	writeJSON(w, status, authResponse{Token: token, User: newUserResponse(user)})
}

// currentUser handles GET /api/user/me.
func (s *Server) currentUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.deps.Users.GetByID(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(user))
}

// updateProfile handles PUT /api/user/profile.
func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	user, err := s.deps.Users.UpdateUsername(r.Context(), userIDFromContext(r.Context()), req.Username)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Error().Err(err).Msg("failed to update profile")
			writeError(w, http.StatusInternalServerError, "Failed to update profile")
			return
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(user))
}

// uploadProfileImage handles POST /api/user/profile-image.
func (s *Server) uploadProfileImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := userIDFromContext(ctx)
	logger := observability.LoggerFromContext(ctx, s.logger)

	file, ok := readMultipartFile(w, r, s.cfg.MaxProfileImageBytes+1)
	if !ok {
		return
	}

	ext := storage.Extension(file.name)
	if !slices.Contains(profileImageExtensions, ext) {
		writeError(w, http.StatusBadRequest, "Only JPG, PNG, and WebP images are allowed")
		return
	}
	if int64(len(file.data)) > s.cfg.MaxProfileImageBytes {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Image must be smaller than %dMB", s.cfg.MaxProfileImageBytes>>20))
		return
	}

	current, err := s.deps.Users.GetByID(ctx, userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	stored, err := s.deps.Files.SaveProfileImage(userID, ext, file.data)
	if err != nil {
		logger.Error().Err(err).Msg("failed to save profile image")
		writeError(w, http.StatusInternalServerError, "Failed to save file")
		return
	}

	user, err := s.deps.Users.SetProfileImage(ctx, userID, &stored)
	if err != nil {
		_ = s.deps.Files.Remove(stored)
		logger.Error().Err(err).Msg("failed to store profile image path")
		writeError(w, http.StatusInternalServerError, "Failed to update user profile")
		return
	}

	if current.ProfileImageURL != nil {
		s.removeFile(logger, *current.ProfileImageURL)
	}

	writeJSON(w, http.StatusOK, newUserResponse(user))
}

// deleteProfileImage handles DELETE /api/user/profile-image.
func (s *Server) deleteProfileImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := userIDFromContext(ctx)
	logger := observability.LoggerFromContext(ctx, s.logger)

	current, err := s.deps.Users.GetByID(ctx, userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	user, err := s.deps.Users.SetProfileImage(ctx, userID, nil)
	if err != nil {
		logger.Error().Err(err).Msg("failed to clear profile image")
		writeError(w, http.StatusInternalServerError, "Failed to update user profile")
		return
	}

	if current.ProfileImageURL != nil {
		s.removeFile(logger, *current.ProfileImageURL)
	}

	writeJSON(w, http.StatusOK, newUserResponse(user))
}

// multipartFile is the "file" part of a multipart upload.
type multipartFile struct {
	name string
	data []byte
}

// readMultipartFile reads the first part named "file", reading at most
// limit bytes of it. It writes a 400 response and returns false when the
// body is malformed or has no such part.
func readMultipartFile(w http.ResponseWriter, r *http.Request, limit int64) (*multipartFile, bool) {
	reader, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read multipart field: "+err.Error())
		return nil, false
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "No file provided")
			return nil, false
		}
		if err != nil {
			writeMultipartError(w, "Failed to read multipart field: ", err)
			return nil, false
		}

		if part.FormName() != "file" {
			_ = part.Close()
			continue
		}

		var src io.Reader = part
		if limit > 0 {
			src = io.LimitReader(part, limit)
		}
		data, err := io.ReadAll(src)
		_ = part.Close()
		if err != nil {
			writeMultipartError(w, "Failed to read file data: ", err)
			return nil, false
		}
		return &multipartFile{name: part.FileName(), data: data}, true
	}
}

func writeMultipartError(w http.ResponseWriter, prefix string, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
		return
	}
	writeError(w, http.StatusBadRequest, prefix+err.Error())
}
