package fakeapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/scoutcard/internal/model"
	"github.com/dukerupert/scoutcard/internal/validate"
)

type credentialResponse struct {
	AccessCredential  string      `json:"accessCredential"`
	RenewalCredential string      `json:"renewalCredential,omitempty"`
	User              *model.User `json:"user,omitempty"`
}

type registrationBody struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// registration revalidates a body server-side. The client never sends the
// confirmation field, so it is filled from the password.
func (b registrationBody) registration() model.Registration {
	return model.Registration{
		Email:           strings.TrimSpace(b.Email),
		Password:        b.Password,
		PasswordConfirm: b.Password,
		FirstName:       strings.TrimSpace(b.FirstName),
		LastName:        strings.TrimSpace(b.LastName),
	}
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid request body")
		return
	}

	s.mu.Lock()
	id, ok := s.emails[strings.TrimSpace(body.Email)]
	var acct account
	if ok {
		acct = *s.accounts[id]
	}
	s.mu.Unlock()

	if !ok || bcrypt.CompareHashAndPassword(acct.passwordHash, []byte(body.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "", "invalid email or password")
		return
	}

	s.mu.Lock()
	access, err := s.issueAccess(id)
	renewal := s.issueRenewal(id)
	s.mu.Unlock()
	if err != nil {
		s.logger.Error("issue credentials", "error", err)
		writeError(w, http.StatusInternalServerError, "", "internal error")
		return
	}

	s.logger.Info("login", "account_id", id)
	writeJSON(w, http.StatusOK, credentialResponse{
		AccessCredential:  access,
		RenewalCredential: renewal,
		User:              &acct.user,
	})
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var body registrationBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid request body")
		return
	}
	reg := body.registration()
	if err := validate.Struct(reg); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "", err.Error())
		return
	}

	user, err := s.CreateAccount(reg.Email, reg.Password, reg.FirstName, reg.LastName)
	if errors.Is(err, ErrEmailTaken) {
		writeError(w, http.StatusConflict, "email_taken", "an account with that email already exists")
		return
	}
	if err != nil {
		s.logger.Error("create account", "error", err)
		writeError(w, http.StatusInternalServerError, "", "internal error")
		return
	}

	s.logger.Info("account registered", "account_id", user.ID)
	writeJSON(w, http.StatusCreated, user)
}

// passwordReset answers 202 whether or not the email has an account.
func (s *Server) passwordReset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid request body")
		return
	}
	addr := strings.TrimSpace(body.Email)
	s.mu.Lock()
	_, known := s.emails[addr]
	s.mu.Unlock()

	if known {
		link := s.cfg.PublicURL + "/reset/" + randomToken(24)
		if err := s.cfg.Mailer.SendPasswordReset(r.Context(), addr, link); err != nil {
			s.logger.Error("send password reset", "error", err)
		}
	}
	s.logger.Info("password reset requested", "known", known)
	w.WriteHeader(http.StatusAccepted)
}

// refresh exchanges a renewal credential for a new access credential and a
// rotated renewal credential. The presented renewal is consumed.
func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	s.refreshCalls.Add(1)
	var body struct {
		RenewalCredential string `json:"renewalCredential"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid request body")
		return
	}
	if s.cfg.RefreshDelay > 0 {
		time.Sleep(s.cfg.RefreshDelay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.renewals[body.RenewalCredential]
	if !ok {
		writeError(w, http.StatusUnauthorized, "", "renewal credential invalid")
		return
	}
	delete(s.renewals, body.RenewalCredential)

	access, err := s.issueAccess(id)
	if err != nil {
		s.logger.Error("issue access credential", "error", err)
		writeError(w, http.StatusInternalServerError, "", "internal error")
		return
	}
	writeJSON(w, http.StatusOK, credentialResponse{
		AccessCredential:  access,
		RenewalCredential: s.issueRenewal(id),
	})
}
