package ollama

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
		Size int64  `json:"size"`
	} `json:"models"`
}

type showResponse struct {
	Description  string         `json:"description"`
	Format       string         `json:"format"`
	Families     []string       `json:"families"`
	Size         int64          `json:"size"`
	Capabilities map[string]any `json:"capabilities"`
	Parameters   map[string]any `json:"parameters"`
}

// ListModels enumerates installed models, keeps only the vision-capable
// ones and returns them sorted by family then name. Results are cached;
// pass force to refetch.
func (c *Client) ListModels(ctx context.Context, force bool) ([]ModelInfo, error) {
	c.mu.Lock()
	cached := c.modelsCache
	c.mu.Unlock()
	if !force && len(cached) > 0 {
		return cached, nil
	}

	var tags tagsResponse
	if err := c.getJSON(ctx, tagsEndpoint, &tags); err != nil {
		c.setLastError(err.Error())
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	c.logger.Debug().Int("count", len(tags.Models)).Msg("fetched installed models")

	models := make([]ModelInfo, 0, len(tags.Models))
	for _, entry := range tags.Models {
		info, err := c.showModel(ctx, entry.Name)
		if err != nil {
			c.setLastError(err.Error())
			return nil, fmt.Errorf("failed to inspect model %s: %w", entry.Name, err)
		}
		if info.Size == 0 {
			info.Size = entry.Size
		}

		if !c.options.Classifier.SupportsVision(*info) {
			c.logger.Debug().Str("model", info.Name).Msg("skipped non-vision model")
			continue
		}
		models = append(models, *info)
	}

	// Empty families sort last.
	sort.Slice(models, func(i, j int) bool {
		fi, fj := models[i].Family, models[j].Family
		if fi == "" {
			fi = "￿"
		}
		if fj == "" {
			fj = "￿"
		}
		if fi != fj {
			return fi < fj
		}
		return models[i].Name < models[j].Name
	})

	c.mu.Lock()
	c.modelsCache = models
	c.mu.Unlock()

	c.logger.Info().Int("count", len(models)).Msg("vision-capable models refreshed")
	return models, nil
}

// showModel fetches per-model metadata via POST api/show.
func (c *Client) showModel(ctx context.Context, name string) (*ModelInfo, error) {
	var show showResponse
	if err := c.postJSON(ctx, showEndpoint, map[string]string{"name": name}, &show); err != nil {
		return nil, err
	}

	info := &ModelInfo{
		Name:         name,
		Description:  show.Description,
		Format:       show.Format,
		Tag:          "latest",
		Size:         show.Size,
		Capabilities: show.Capabilities,
		Parameters:   show.Parameters,
	}
	if len(show.Families) > 0 {
		info.Family = show.Families[0]
	}
	if idx := strings.Index(name, ":"); idx != -1 && idx+1 < len(name) {
		info.Tag = name[idx+1:]
	}
	return info, nil
}
