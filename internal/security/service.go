package security

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/andersonlima/membergate/backend/internal/repository"
)

// Service exposes the audit log and risk assessment to the admin
// surface. It never writes log entries; appends happen in the session
// manager only.
type Service struct {
	logRepo     repository.SecurityLogRepository
	sessionRepo repository.SessionRepository
	userRepo    repository.UserRepository
	logger      *slog.Logger
}

// NewService creates a new security Service instance
func NewService(
	logRepo repository.SecurityLogRepository,
	sessionRepo repository.SessionRepository,
	userRepo repository.UserRepository,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		logRepo:     logRepo,
		sessionRepo: sessionRepo,
		userRepo:    userRepo,
		logger:      logger,
	}
}

// ListLogs retrieves audit entries matching the filter, newest-first,
// with the total match count
func (s *Service) ListLogs(ctx context.Context, filter repository.SecurityLogFilter) ([]repository.SecurityLogEntry, int, error) {
	return s.logRepo.List(ctx, filter)
}

// AssessUser grades one user's current exposure from the distinct IP
// addresses among their active sessions
func (s *Service) AssessUser(ctx context.Context, userID uuid.UUID) (*RiskAssessment, error) {
	if _, err := s.userRepo.GetByID(ctx, userID); err != nil {
		return nil, err
	}

	distinctIPs, err := s.sessionRepo.CountDistinctActiveIPs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count distinct IPs: %w", err)
	}

	return &RiskAssessment{
		UserID:      userID.String(),
		DistinctIPs: distinctIPs,
		Severity:    ClassifyRisk(distinctIPs),
	}, nil
}

// AssessAll grades every non-admin account. Users without active
// sessions grade low and are included so the dashboard shows the full
// member list.
func (s *Service) AssessAll(ctx context.Context) ([]RiskAssessment, error) {
	users, err := s.userRepo.ListNonAdmins(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	assessments := make([]RiskAssessment, 0, len(users))
	for _, u := range users {
		distinctIPs, err := s.sessionRepo.CountDistinctActiveIPs(ctx, u.ID)
		if err != nil {
			s.logger.Error("Failed to count distinct IPs", "error", err, "user_id", u.ID)
			continue
		}
		assessments = append(assessments, RiskAssessment{
			UserID:      u.ID.String(),
			DistinctIPs: distinctIPs,
			Severity:    ClassifyRisk(distinctIPs),
		})
	}

	return assessments, nil
}
