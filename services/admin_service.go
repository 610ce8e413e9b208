package services

import (
	"time"

	"chat-relay/domain"
	"chat-relay/observability"
	"chat-relay/repositories"

	"github.com/samber/lo"
)

// UserView is a user joined with its presence record, passwords excluded.
type UserView struct {
	ID           string     `json:"_id"`
	Email        string     `json:"email"`
	Username     string     `json:"username,omitempty"`
	Role         string     `json:"role"`
	IsFirstLogin bool       `json:"isFirstLogin"`
	CreatedAt    time.Time  `json:"created_at"`
	LastSeen     *time.Time `json:"last_seen"`
	IsOnline     bool       `json:"is_online"`
}

// AdminStats mirrors the statistics surface of the account dashboard,
// enriched with relay and process telemetry.
type AdminStats struct {
	TotalUsers          int                     `json:"total_users"`
	TotalMessages       int                     `json:"total_messages"`
	ActiveUsers         int                     `json:"active_users"`
	MessagesToday       int                     `json:"messages_today"`
	AverageResponseTime float64                 `json:"average_response_time"`
	Relay               observability.RelayStats `json:"relay"`
}

type IAdminService interface {
	ListUsers(role string) ([]UserView, error)
	GetUser(id string) (UserView, error)
	Stats() (AdminStats, error)
}

type AdminService struct {
	users        repositories.IUserRepository
	messages     repositories.IMessageRepository
	presence     repositories.IPresenceRepository
	monitoring   *observability.MonitoringManager
	recentWindow int
}

func NewAdminService(
	users repositories.IUserRepository,
	messages repositories.IMessageRepository,
	presence repositories.IPresenceRepository,
	monitoring *observability.MonitoringManager,
	recentWindow int,
) *AdminService {
	return &AdminService{
		users:        users,
		messages:     messages,
		presence:     presence,
		monitoring:   monitoring,
		recentWindow: recentWindow,
	}
}

// ListUsers joins users with their durable presence records.
func (s *AdminService) ListUsers(role string) ([]UserView, error) {
	users, err := s.users.ListUsers(role)
	if err != nil {
		return nil, err
	}

	views := make([]UserView, 0, len(users))
	for _, user := range users {
		views = append(views, s.toView(user))
	}
	return views, nil
}

func (s *AdminService) GetUser(id string) (UserView, error) {
	user, err := s.users.GetUserByID(id)
	if err != nil {
		return UserView{}, err
	}
	return s.toView(user), nil
}

func (s *AdminService) toView(user domain.User) UserView {
	view := UserView{
		ID:           user.ID,
		Email:        user.Email,
		Username:     user.Username,
		Role:         user.Role,
		IsFirstLogin: user.IsFirstLogin,
		CreatedAt:    user.CreatedAt,
	}
	// Presence lookup is best-effort; an unknown user is simply offline.
	if presence, err := s.presence.Get(user.ID); err == nil {
		view.IsOnline = presence.IsOnline
		view.LastSeen = presence.LastSeen
	}
	return view
}

// Stats computes the dashboard aggregates: customer count, message
// volumes, distinct senders over the last day, and the average delay
// between consecutive messages from different senders over the recent
// window (a rough conversation response time).
func (s *AdminService) Stats() (AdminStats, error) {
	totalUsers, err := s.users.CountByRole(domain.RoleCustomer)
	if err != nil {
		return AdminStats{}, err
	}
	totalMessages, err := s.messages.CountAll()
	if err != nil {
		return AdminStats{}, err
	}

	now := time.Now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	messagesToday, err := s.messages.CountSince(midnight)
	if err != nil {
		return AdminStats{}, err
	}
	activeUsers, err := s.messages.DistinctSendersSince(now.Add(-24 * time.Hour))
	if err != nil {
		return AdminStats{}, err
	}

	recent, err := s.messages.RecentMessages(s.recentWindow)
	if err != nil {
		return AdminStats{}, err
	}

	return AdminStats{
		TotalUsers:          totalUsers,
		TotalMessages:       totalMessages,
		ActiveUsers:         activeUsers,
		MessagesToday:       messagesToday,
		AverageResponseTime: averageResponseSeconds(recent),
		Relay:               s.monitoring.GetLatest(),
	}, nil
}

// averageResponseSeconds walks the newest-first window and averages the
// gaps between consecutive messages whose senders differ.
func averageResponseSeconds(newestFirst []domain.Message) float64 {
	gaps := lo.FilterMap(lo.Range(len(newestFirst)), func(i int, _ int) (float64, bool) {
		if i == 0 {
			return 0, false
		}
		if newestFirst[i-1].SenderID == newestFirst[i].SenderID {
			return 0, false
		}
		return newestFirst[i-1].CreatedAt.Sub(newestFirst[i].CreatedAt).Seconds(), true
	})
	if len(gaps) == 0 {
		return 0
	}
	return lo.Sum(gaps) / float64(len(gaps))
}
