package inbox

import "github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/core"

// admitWave filters a fetched wave batch down to messages never delivered this run.
// Admitted ids are added to seen, so duplicates inside the batch are admitted once.
func admitWave(batch []core.Message, seen idSet, working []core.Message) []core.Message {
	inbox := newIDSet()
	for _, m := range working {
		inbox.add(m.ID)
	}

	admitted := make([]core.Message, 0, len(batch))
	for _, m := range batch {
		if seen.has(m.ID) || inbox.has(m.ID) {
			continue
		}
		seen.add(m.ID)
		admitted = append(admitted, m)
	}
	return admitted
}
