package ir

import (
	"fmt"
	"strings"
)

// LogLevel is the severity of a LogEntry shown in the view.
type LogLevel uint32

const (
	LogInfo LogLevel = iota
	LogWarning
	LogError
)

var logLevelNames = [...]string{"info", "warning", "error"}

func (l LogLevel) String() string {
	if int(l) < len(logLevelNames) {
		return logLevelNames[l]
	}
	return fmt.Sprintf("level(%d)", uint32(l))
}

// ParseLogLevel resolves a level name; the empty string is info.
func ParseLogLevel(name string) (LogLevel, error) {
	if name == "" {
		return LogInfo, nil
	}
	for i, n := range logLevelNames {
		if n == strings.ToLower(name) {
			return LogLevel(i), nil
		}
	}
	return 0, fmt.Errorf("unknown log level %q", name)
}

// LogEntry is one line of the core's diagnostic log.
type LogEntry struct {
	Level   LogLevel `json:"level"`
	Message string   `json:"message"`
}

// Rating is a film rating. Values are wire tags.
type Rating uint32

const (
	RatingVeryBad Rating = iota
	RatingBad
	RatingMeh
	RatingGood
	RatingVeryGood
	RatingGoat
)

var ratingNames = [...]string{"very bad", "bad", "meh", "good", "very good", "goat"}

func (r Rating) String() string {
	if int(r) < len(ratingNames) {
		return ratingNames[r]
	}
	return fmt.Sprintf("rating(%d)", uint32(r))
}

// ParseRating accepts the display names ("very good") case-insensitively.
func ParseRating(s string) (Rating, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "" {
		return 0, fmt.Errorf("empty rating")
	}
	for i, n := range ratingNames {
		if n == v {
			return Rating(i), nil
		}
	}
	return 0, fmt.Errorf("invalid rating %q", s)
}

// WatchedFilm is a film entry in the watch history.
type WatchedFilm struct {
	Title        string `json:"title"`
	Rating       Rating `json:"rating"`
	YearWatched  int16  `json:"year_watched"`
	MonthWatched uint8  `json:"month_watched"`
}

// UserInfo describes the signed-in GitHub user.
type UserInfo struct {
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

// ViewModel is the core's latest rendered snapshot.
//
// A ViewModel is never mutated after it has been published to a view cell;
// replacements are whole new values.
type ViewModel struct {
	Log      []LogEntry    `json:"log"`
	Films    []WatchedFilm `json:"films"`
	UserInfo *UserInfo     `json:"user_info,omitempty"`
}

// Clone returns a deep copy.
func (v *ViewModel) Clone() *ViewModel {
	if v == nil {
		return &ViewModel{}
	}
	out := &ViewModel{
		Log:   append([]LogEntry(nil), v.Log...),
		Films: append([]WatchedFilm(nil), v.Films...),
	}
	if v.UserInfo != nil {
		u := *v.UserInfo
		out.UserInfo = &u
	}
	return out
}
