package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"warehouse-service/internal/models"
	"warehouse-service/internal/store"
	"warehouse-service/internal/util"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// UserService handles user accounts
type UserService struct {
	store  store.DataStore
	orders *OrderService
	logger *zap.Logger
}

// NewUserService creates a new user service
func NewUserService(store store.DataStore, orders *OrderService) *UserService {
	return &UserService{
		store:  store,
		orders: orders,
		logger: util.GetLogger(),
	}
}

type CreateUserRequest struct {
	Username string `json:"username" binding:"required,max=50"`
	Email    string `json:"email" binding:"required,email,max=100"`
	Password string `json:"password" binding:"required,min=8"`
}

type UpdateUserRequest struct {
	Username *string `json:"username,omitempty" binding:"omitempty,max=50"`
	Email    *string `json:"email,omitempty" binding:"omitempty,email,max=100"`
}

// HashPassword returns a bcrypt hash of the plain-text password
func HashPassword(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	return string(hash), err
}

// CheckPassword compares a bcrypt hash against the plain-text candidate
func CheckPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return "", validation("invalid email address")
	}
	return strings.ToLower(addr.Address), nil
}

// CreateUser registers a new user
func (s *UserService) CreateUser(ctx context.Context, req *CreateUserRequest) (*models.User, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return nil, validation("username must not be empty")
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, newError(ErrValidation, "User creation failed", err)
	}

	user := &models.User{Username: username, Email: email, PasswordHash: hash}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrUniqueViolation) {
			return nil, newError(ErrConflict, "Username or email already registered", err)
		}
		s.logger.Error("Failed to create user", zap.Error(err))
		return nil, classify(err, "User creation failed")
	}

	s.logger.Info("User created", zap.Int64("user_id", user.ID))
	return user, nil
}

// GetUser retrieves a user by ID
func (s *UserService) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, classify(lookup(err, "User"), "Failed to fetch user")
	}
	return user, nil
}

// ListUsers returns a page of users
func (s *UserService) ListUsers(ctx context.Context, skip, limit int) ([]models.User, error) {
	if err := checkPage(skip, limit); err != nil {
		return nil, err
	}
	users, err := s.store.ListUsers(ctx, skip, limit)
	if err != nil {
		return nil, classify(err, "Failed to fetch users")
	}
	return users, nil
}

// UpdateUser changes username and/or email
func (s *UserService) UpdateUser(ctx context.Context, userID int64, req *UpdateUserRequest) (*models.User, error) {
	if req.Username == nil && req.Email == nil {
		return nil, validation("No fields provided for update")
	}

	var user *models.User
	err := s.store.WithTx(ctx, func(repo store.Repository) error {
		current, err := repo.GetUserByID(ctx, userID)
		if err != nil {
			return lookup(err, "User")
		}
		if req.Username != nil {
			username := strings.TrimSpace(*req.Username)
			if username == "" {
				return validation("username must not be empty")
			}
			current.Username = username
		}
		if req.Email != nil {
			email, err := normalizeEmail(*req.Email)
			if err != nil {
				return err
			}
			current.Email = email
		}
		if err := repo.UpdateUser(ctx, current); err != nil {
			return err
		}
		user = current
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrUniqueViolation) {
			return nil, newError(ErrConflict, "Username or email already registered", err)
		}
		return nil, classify(err, "Failed to update user")
	}
	return user, nil
}

// DeleteUser removes a user. Each of the user's orders goes through the same
// reconciliation as an explicit order deletion, in the same transaction.
func (s *UserService) DeleteUser(ctx context.Context, userID int64) error {
	var changes []OrderChange
	err := s.store.WithTx(ctx, func(repo store.Repository) error {
		if _, err := repo.GetUserByID(ctx, userID); err != nil {
			return lookup(err, "User")
		}

		var err error
		changes, err = s.orders.ReleaseUserOrders(ctx, repo, userID)
		if err != nil {
			return err
		}
		return repo.DeleteUser(ctx, userID)
	})
	if err != nil {
		s.logger.Error("Failed to delete user", zap.Int64("user_id", userID), zap.Error(err))
		return classify(err, "Failed to delete user")
	}

	s.logger.Info("User deleted", zap.Int64("user_id", userID), zap.Int("orders_removed", len(changes)))
	s.orders.NotifyDeleted(ctx, changes)
	return nil
}
