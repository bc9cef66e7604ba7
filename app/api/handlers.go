package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"feedspider/app/cfg"
	"feedspider/app/database"
	"feedspider/app/tasks"
)

func NewHandler(sourceRepo database.SourceRepository, entryRepo database.EntryRepository,
	scheduler tasks.TaskSchedulerInterface) *Handler {
	return &Handler{
		sourceRepo: sourceRepo,
		entryRepo:  entryRepo,
		scheduler:  scheduler,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   cfg.GetVersion(),
	}

	if sourceCount, err := h.sourceRepo.GetSourceCount(false); err == nil {
		health["sources"] = sourceCount
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStatus(c *gin.Context) {
	status := map[string]interface{}{
		"scheduler": h.scheduler.Status(),
	}

	total, err := h.sourceRepo.GetSourceCount(false)
	if err == nil {
		enabled, _ := h.sourceRepo.GetSourceCount(true)
		status["sources"] = map[string]int{
			"total":   total,
			"enabled": enabled,
		}
	}

	c.JSON(http.StatusOK, status)
}

func (h *Handler) StartScheduler(c *gin.Context) {
	if err := h.scheduler.Start(); err != nil {
		h.schedulerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "started"})
}

func (h *Handler) StopScheduler(c *gin.Context) {
	if err := h.scheduler.Stop(); err != nil {
		h.schedulerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

func (h *Handler) TriggerAll(c *gin.Context) {
	triggered, err := h.scheduler.TriggerAll()
	if err != nil {
		h.schedulerError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"triggered": triggered})
}

func (h *Handler) TriggerSource(c *gin.Context) {
	if err := h.scheduler.TriggerSource(c.Param("name")); err != nil {
		h.schedulerError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "enqueued"})
}

// FetchSource runs one cycle synchronously and returns its counters. With
// ?force=true the stored validator tokens are ignored.
func (h *Handler) FetchSource(c *gin.Context) {
	force, _ := strconv.ParseBool(c.DefaultQuery("force", "false"))

	result, err := h.scheduler.FetchOnce(c.Param("name"), force)
	if err != nil && result == nil {
		h.schedulerError(c, err)
		return
	}
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "result": result})
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) ListSources(c *gin.Context) {
	sources, err := h.sourceRepo.ListSources(false)
	if err != nil {
		slog.Error("Database error", "operation", "list_sources", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	infos := make([]map[string]interface{}, 0, len(sources))
	for _, source := range sources {
		info := map[string]interface{}{
			"name":             source.Name,
			"url":              source.URL,
			"enabled":          source.Enabled,
			"interval_minutes": source.IntervalMinutes,
			"error_count":      source.ErrorCount,
		}
		if source.LastFetchedAt != nil {
			info["last_fetched_at"] = source.LastFetchedAt.Format(time.RFC3339)
		}
		if count, err := h.entryRepo.GetEntryCount(source.ID); err == nil {
			info["entry_count"] = count
		}
		infos = append(infos, info)
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"sources": infos,
		"total":   len(infos),
	})
}

func (h *Handler) GetSource(c *gin.Context) {
	name := c.Param("name")

	source, err := h.sourceRepo.GetSource(name)
	if err != nil {
		slog.Error("Database error", "operation", "get_source", "source", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if source == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Source not found"})
		return
	}

	details := map[string]interface{}{
		"id":               source.ID,
		"name":             source.Name,
		"url":              source.URL,
		"enabled":          source.Enabled,
		"interval_minutes": source.IntervalMinutes,
		"max_entries":      source.MaxEntries,
		"recent_only":      source.RecentOnly,
		"dedup_strategy":   source.DedupStrategy,
		"error_count":      source.ErrorCount,
	}
	if source.LastFetchedAt != nil {
		details["last_fetched_at"] = source.LastFetchedAt.Format(time.RFC3339)
	}

	if entries, err := h.entryRepo.GetRecentEntries(source.ID, 10); err == nil {
		recent := make([]map[string]interface{}, 0, len(entries))
		for _, entry := range entries {
			item := map[string]interface{}{
				"title":    entry.Title,
				"link":     entry.Link,
				"language": entry.Language,
			}
			if entry.PublishedAt != nil {
				item["published_at"] = entry.PublishedAt.Format(time.RFC3339)
			}
			if len(entry.Keywords) > 0 {
				item["keywords"] = entry.Keywords
			}
			recent = append(recent, item)
		}
		details["recent_entries"] = recent
	}

	c.JSON(http.StatusOK, details)
}

func (h *Handler) schedulerError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, tasks.ErrSourceNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, tasks.ErrAlreadyRunning), errors.Is(err, tasks.ErrNotRunning),
		errors.Is(err, tasks.ErrSourceBusy):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		slog.Error("Scheduler operation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
