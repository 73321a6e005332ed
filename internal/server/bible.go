package server

import (
	"net/http"
	"strconv"

	"minuto/internal/bible"
	"minuto/internal/journal"
	"minuto/internal/models"
	"minuto/internal/progress"
)

// chapterRef reads book and chapter from the query. With optional set, a
// request naming neither returns a nil ref.
func chapterRef(r *http.Request, optional bool) (*models.ChapterRef, error) {
	q := r.URL.Query()
	book, rawChapter := q.Get("book"), q.Get("chapter")
	if optional && book == "" && rawChapter == "" {
		return nil, nil
	}

	chapter, _ := strconv.Atoi(rawChapter)
	ref, err := bible.ParseRef(book, chapter)
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

var deleted = map[string]bool{"success": true}

func (a *API) handleListHighlights(w http.ResponseWriter, r *http.Request) {
	ref, err := chapterRef(r, false)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	out, err := a.bible.Highlights(r.Context(), UserID(r.Context()), *ref)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleCreateHighlight(w http.ResponseWriter, r *http.Request) {
	var in bible.HighlightInput
	if err := decodeJSON(r, &in); err != nil {
		a.writeError(w, r, err)
		return
	}
	h, err := a.bible.AddHighlight(r.Context(), UserID(r.Context()), in)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h)
}

func (a *API) handleDeleteHighlight(w http.ResponseWriter, r *http.Request) {
	if err := a.bible.RemoveHighlight(r.Context(), UserID(r.Context()), r.PathValue("id")); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deleted)
}

func (a *API) handleListNotes(w http.ResponseWriter, r *http.Request) {
	ref, err := chapterRef(r, false)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	out, err := a.bible.Notes(r.Context(), UserID(r.Context()), *ref)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleCreateNote(w http.ResponseWriter, r *http.Request) {
	var in bible.NoteInput
	if err := decodeJSON(r, &in); err != nil {
		a.writeError(w, r, err)
		return
	}
	n, err := a.bible.AddNote(r.Context(), UserID(r.Context()), in)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

type noteUpdate struct {
	NoteText string `json:"note_text"`
}

func (a *API) handleUpdateNote(w http.ResponseWriter, r *http.Request) {
	var in noteUpdate
	if err := decodeJSON(r, &in); err != nil {
		a.writeError(w, r, err)
		return
	}
	n, err := a.bible.EditNote(r.Context(), UserID(r.Context()), r.PathValue("id"), in.NoteText)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (a *API) handleDeleteNote(w http.ResponseWriter, r *http.Request) {
	if err := a.bible.RemoveNote(r.Context(), UserID(r.Context()), r.PathValue("id")); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deleted)
}

func (a *API) handleListFavorites(w http.ResponseWriter, r *http.Request) {
	ref, err := chapterRef(r, true)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	out, err := a.bible.Favorites(r.Context(), UserID(r.Context()), ref)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleCreateFavorite(w http.ResponseWriter, r *http.Request) {
	var in bible.FavoriteInput
	if err := decodeJSON(r, &in); err != nil {
		a.writeError(w, r, err)
		return
	}
	f, err := a.bible.AddFavorite(r.Context(), UserID(r.Context()), in)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

func (a *API) handleDeleteFavorite(w http.ResponseWriter, r *http.Request) {
	if err := a.bible.RemoveFavorite(r.Context(), UserID(r.Context()), r.PathValue("id")); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deleted)
}

type userInsights struct {
	Streak     *progress.StreakStatus  `json:"streak"`
	Engagement models.AnnotationCounts `json:"engagement"`
	Mood       *journal.MoodSummary    `json:"mood"`
}

// handleInsights gathers streak, annotation and mood figures in one report.
func (a *API) handleInsights(w http.ResponseWriter, r *http.Request) {
	userID := UserID(r.Context())
	streak, err := a.engine.GetStreak(r.Context(), userID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	counts, err := a.bible.Counts(r.Context(), userID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	mood, err := a.journals.MoodSummary(r.Context(), userID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userInsights{Streak: streak, Engagement: counts, Mood: mood})
}
