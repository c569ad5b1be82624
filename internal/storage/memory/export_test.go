package memory

// LockCount возвращает число заведённых замков очередей.
func LockCount(s *Store) int {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	return len(s.locks)
}
