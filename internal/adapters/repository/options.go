package repository

import "github.com/okian/twitch-sources/pkg/logger"

// Option applies a configuration option to the BadgerStore.
type Option func(*BadgerStore)

// WithDir sets the on-disk directory of the database.
func WithDir(dir string) Option {
	return func(s *BadgerStore) {
		if dir != "" {
			s.dir = dir
		}
	}
}

// WithInMemory keeps all data in memory; nothing is written to disk.
func WithInMemory(inMemory bool) Option {
	return func(s *BadgerStore) {
		s.inMemory = inMemory
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *BadgerStore) {
		if l != nil {
			s.logger = l
		}
	}
}
