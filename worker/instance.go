package worker

import (
	"bufio"
	"os"
	"strings"

	"github.com/google/uuid"
)

// InstanceID resolves the worker's identity for direct-messaging routing:
// a container id parsed from /proc/self/cgroup, falling back to the host's
// hostname, falling back to a random UUID.
func InstanceID() string {
	if id, ok := cgroupContainerID("/proc/self/cgroup"); ok {
		return id
	}
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		return hostname
	}
	return uuid.New().String()
}

// cgroupContainerID extracts a container id from a cgroup file, matching
// the long hex ids Docker and most container runtimes assign. It looks for
// the last "/"-separated path segment of each cgroup line and accepts one
// that is at least 12 hex characters — long enough to be a container id and
// short enough to exclude obviously unrelated paths.
func cgroupContainerID(path string) (string, bool) {
	f, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		parts := strings.Split(line, "/")
		segment := parts[len(parts)-1]
		if isLikelyContainerID(segment) {
			return segment, true
		}
	}
	return "", false
}

func isLikelyContainerID(s string) bool {
	if len(s) < 12 {
		return false
	}
	for _, r := range s {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')) {
			return false
		}
	}
	return true
}
