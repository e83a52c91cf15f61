package population

import (
	"context"
	"errors"
	"fmt"

	"FinPeer/internal/domain/models"
	drepo "FinPeer/internal/domain/repository"
	dservice "FinPeer/internal/domain/service"
	"FinPeer/pkg/logger"
)

// Store implements the population contract over any bucket backend.
type Store struct {
	repo         drepo.BucketRepository
	locker       drepo.BucketLocker
	minMarketCap float64
	mode         MergeMode
	metrics      drepo.Metrics
	log          *logger.Logger
}

var _ dservice.PopulationStore = (*Store)(nil)

type Option func(*Store)

func WithMinMarketCap(v float64) Option { return func(s *Store) { s.minMarketCap = v } }

func WithMergeMode(m MergeMode) Option {
	return func(s *Store) {
		if m == MergePatch || m == MergeReplace {
			s.mode = m
		}
	}
}

// WithLocker replaces the in-process locker, e.g. with a distributed one.
func WithLocker(l drepo.BucketLocker) Option { return func(s *Store) { s.locker = l } }

func WithMetrics(m drepo.Metrics) Option { return func(s *Store) { s.metrics = m } }

func WithLogger(l *logger.Logger) Option { return func(s *Store) { s.log = l } }

func NewStore(repo drepo.BucketRepository, opts ...Option) *Store {
	s := &Store{
		repo:         repo,
		locker:       NewLocalLocker(),
		minMarketCap: DefaultMinMarketCap,
		mode:         MergePatch,
		log:          logger.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Locker is the per-bucket lock writers of this store share.
func (s *Store) Locker() drepo.BucketLocker { return s.locker }

// Upsert admits rec and merges it into the bucket, persisting the whole bucket
// before returning. It returns false without error when the admission gate
// rejects the record.
func (s *Store) Upsert(ctx context.Context, key models.BucketKey, code string, rec models.RatioRecord) (bool, error) {
	if err := key.Validate(); err != nil {
		return false, err
	}
	if code == "" {
		return false, fmt.Errorf("upsert %s: company code is required", key)
	}

	admitted, err := Admit(rec, s.minMarketCap)
	if err != nil {
		s.log.Debug("record not admitted",
			logger.String("bucket", key.String()),
			logger.String("code", code),
			logger.Error(err),
		)
		if s.metrics != nil {
			s.metrics.RecordRejected(rejectReason(err))
		}
		return false, nil
	}

	unlock, err := s.locker.Lock(ctx, key)
	if err != nil {
		return false, fmt.Errorf("lock bucket %s: %w", key, err)
	}
	defer unlock()

	created := false
	bucket, err := s.repo.Load(ctx, key)
	switch {
	case errors.Is(err, drepo.ErrBucketNotFound):
		s.log.Info("creating bucket", logger.String("bucket", key.String()))
		bucket = &models.Bucket{}
		created = true
	case err != nil:
		if s.metrics != nil {
			s.metrics.RecordError("bucket_load")
		}
		return false, fmt.Errorf("load bucket %s: %w", key, err)
	}

	if !Merge(bucket, code, admitted, s.mode) && !created {
		return true, nil
	}

	if err := s.repo.Save(ctx, key, bucket); err != nil {
		if s.metrics != nil {
			s.metrics.RecordError("bucket_save")
		}
		return false, fmt.Errorf("save bucket %s: %w", key, err)
	}
	if s.metrics != nil {
		s.metrics.RecordAdmitted(key.Exchange)
	}
	return true, nil
}

// ReadAll returns every company entry of the bucket; a bucket that was never
// written is empty.
func (s *Store) ReadAll(ctx context.Context, key models.BucketKey) ([]models.CompanyEntry, error) {
	bucket, err := s.repo.Load(ctx, key)
	if errors.Is(err, drepo.ErrBucketNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return bucket.Companies, nil
}

// Entry returns the stored entry for one company.
func (s *Store) Entry(ctx context.Context, key models.BucketKey, code string) (*models.CompanyEntry, bool, error) {
	entries, err := s.ReadAll(ctx, key)
	if err != nil {
		return nil, false, err
	}
	for i := range entries {
		if entries[i].Code == code {
			return &entries[i], true, nil
		}
	}
	return nil, false, nil
}

func rejectReason(err error) string {
	var re *RejectError
	if errors.As(err, &re) {
		return re.Reason
	}
	return "unknown"
}
