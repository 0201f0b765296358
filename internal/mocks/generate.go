// Package mocks provides mock implementations for testing the espeech job system.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the interfaces in internal/core.
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	mockRepo := mocks.NewMockJobRepository(ctrl)
//	mockRepo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(job, nil)
package mocks

// JobRepository: Create, ClaimNext, Complete, Fail, GetByID, Stats, DeleteTerminalBefore
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_repository_mock.go github.com/espeech/espeech-api/internal/core JobRepository

// ResultRepository: Store, Get, Touch, Evict, EvictExpired, Forget
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=result_repository_mock.go github.com/espeech/espeech-api/internal/core ResultRepository

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=synthesis_engine_mock.go github.com/espeech/espeech-api/internal/core SynthesisEngine

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=voice_catalog_mock.go github.com/espeech/espeech-api/internal/core VoiceCatalog

// HistoryRepository: Record, List, DeleteOlderThan
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=history_repository_mock.go github.com/espeech/espeech-api/internal/core HistoryRepository
