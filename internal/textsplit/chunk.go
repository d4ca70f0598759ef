package textsplit

// Chunk normalizes text and cuts it into windows of at most size runes.
// Each window after the first starts overlap runes before the previous end,
// so neighbours share context. The last window may be shorter.
//
// overlap is clamped into [0, size-1] so the walk always advances; a
// non-positive size returns the normalized text as one chunk.
func Chunk(text string, size, overlap int) []string {
	clean := Normalize(text)
	if clean == "" {
		return []string{}
	}
	if size <= 0 {
		return []string{clean}
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size - 1
	}
	runes := []rune(clean)
	length := len(runes)
	chunks := make([]string, 0, length/size+1)
	start := 0
	for start < length {
		end := start + size
		if end > length {
			end = length
		}
		chunks = append(chunks, string(runes[start:end]))
		if end >= length {
			break
		}
		start = end - overlap
		if start < 0 {
			start = 0
		}
	}
	return chunks
}
