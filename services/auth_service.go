//go:generate go run go.uber.org/mock/mockgen -source=auth_service.go -destination=../mocks/mock_auth_service.go -package=mocks
package services

import (
	"fmt"
	"time"

	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/repositories"
)

type IAuthService interface {
	Login(email, password string) (LoginResult, error)
	Register(email, username, password, role string) (string, error)
	ChangePassword(userID, newPassword string) error
}

type LoginResult struct {
	Token string
	User  domain.User
}

type AuthService struct {
	userRepository    repositories.IUserRepository
	authTokenDuration time.Duration
}

func NewAuthService(repo repositories.IUserRepository, authTokenDuration time.Duration) *AuthService {
	return &AuthService{userRepository: repo, authTokenDuration: authTokenDuration}
}

// Register validates input, hashes the password and persists the user.
// Validation runs before any expensive cryptographic operation.
func (s *AuthService) Register(email, username, password, role string) (string, error) {
	valReq := auth.RegisterRequest{
		Email:    email,
		Password: password,
	}
	if err := auth.ValidateRegister(valReq); err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrInvalidPassword, err)
	}

	// Hashing happens in the service layer so the repository never sees
	// a plain password.
	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hashing failed: %w", err)
	}

	if role == "" {
		role = domain.RoleCustomer
	}

	userID, err := s.userRepository.CreateUser(email, username, hashedPassword, role)
	if err != nil {
		return "", err // propagates ErrUserAlreadyExists when the email is taken
	}
	return userID, nil
}

// Login verifies credentials and issues a session token. Every failure
// collapses into ErrInvalidCredentials to prevent user enumeration.
func (s *AuthService) Login(email, password string) (LoginResult, error) {
	user, err := s.userRepository.GetUserByEmail(email)
	if err != nil {
		return LoginResult{}, errors.ErrInvalidCredentials
	}

	match, err := auth.ComparePassword(password, user.PasswordHash)
	if err != nil || !match {
		return LoginResult{}, errors.ErrInvalidCredentials
	}

	token, err := auth.GenerateToken(user.ID, user.Role, s.authTokenDuration)
	if err != nil {
		return LoginResult{}, errors.ErrTokenGeneration
	}

	return LoginResult{Token: token, User: user}, nil
}

// ChangePassword replaces the stored hash and clears the first-login flag.
func (s *AuthService) ChangePassword(userID, newPassword string) error {
	user, err := s.userRepository.GetUserByID(userID)
	if err != nil {
		return err
	}

	if err := auth.ValidateRegister(auth.RegisterRequest{Email: user.Email, Password: newPassword}); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidPassword, err)
	}

	hashedPassword, err := auth.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hashing failed: %w", err)
	}
	return s.userRepository.UpdatePassword(userID, hashedPassword)
}
