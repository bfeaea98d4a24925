package rbac

import (
	"sync"

	"github.com/casbin/casbin/v2"
	"go-leave-ledger/internal/domain"
	"go.uber.org/zap"
)

type Service interface {
	LoadPolicy() error
	Enforce(req domain.EnforceRequest) (bool, error)
}

type service struct {
	repo     Repository
	enforcer *casbin.Enforcer
	logger   *zap.Logger
	mu       sync.Mutex
	loaded   bool
}

func NewService(repo Repository, enforcer *casbin.Enforcer, logger ...*zap.Logger) Service {
	l := zap.L().Named("rbac.service")
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0].Named("rbac.service")
	}
	return &service{
		repo:     repo,
		enforcer: enforcer,
		logger:   l,
	}
}

func (s *service) LoadPolicy() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.loadPolicyUnlocked()
}

func (s *service) loadPolicyUnlocked() error {
	s.enforcer.ClearPolicy()

	parents, err := s.repo.GetRoleParents()
	if err != nil {
		return err
	}
	for _, rp := range parents {
		if _, err := s.enforcer.AddGroupingPolicy(rp.Role, rp.Parent); err != nil {
			return err
		}
	}

	perms, err := s.repo.GetRolePermissions()
	if err != nil {
		return err
	}
	for _, p := range perms {
		if _, err := s.enforcer.AddPolicy(p.Role, p.Resource, p.Action); err != nil {
			return err
		}
	}

	s.loaded = true
	s.logger.Debug("rbac policy loaded",
		zap.Int("role_parents", len(parents)),
		zap.Int("role_permissions", len(perms)),
	)
	return nil
}

func (s *service) Enforce(req domain.EnforceRequest) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		if err := s.loadPolicyUnlocked(); err != nil {
			return false, err
		}
	}

	allowed, err := s.enforcer.Enforce(req.Role, req.Resource, req.Action)
	if err != nil {
		s.logger.Error("rbac enforce failed",
			zap.String("role", req.Role),
			zap.String("resource", req.Resource),
			zap.String("action", req.Action),
			zap.Error(err),
		)
		return false, err
	}

	s.logger.Debug("rbac enforce result",
		zap.String("role", req.Role),
		zap.String("resource", req.Resource),
		zap.String("action", req.Action),
		zap.Bool("allowed", allowed),
	)
	return allowed, nil
}
