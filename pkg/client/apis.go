package client

import (
	"encoding/json"
	"net/url"

	pkgerrors "github.com/pkg/errors"

	"github.com/charlie0129/formcoach/pkg/config"
	"github.com/charlie0129/formcoach/pkg/daemon"
)

// Reset clears the session counters.
func (c *Client) Reset() (*daemon.SessionResponse, error) {
	ret, err := c.Post("/session/reset", "")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to reset session")
	}
	return unmarshal[daemon.SessionResponse](ret, "session")
}

// Select switches the exercise. persist also makes it the default.
func (c *Client) Select(exercise string, persist bool) (*daemon.ExerciseResponse, error) {
	path := "/exercise/" + url.PathEscape(exercise)
	if persist {
		path += "?persist=true"
	}
	ret, err := c.Get(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to select exercise %s", exercise)
	}
	return unmarshal[daemon.ExerciseResponse](ret, "exercise")
}

func (c *Client) GetSession() (*daemon.SessionResponse, error) {
	ret, err := c.Get("/session")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get session")
	}
	return unmarshal[daemon.SessionResponse](ret, "session")
}

func (c *Client) GetExercises() ([]string, error) {
	ret, err := c.Get("/exercises")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to list exercises")
	}
	names, err := unmarshal[[]string](ret, "exercises")
	if err != nil {
		return nil, err
	}
	return *names, nil
}

func (c *Client) GetConfig() (*config.RawFileConfig, error) {
	ret, err := c.Get("/config")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get config")
	}
	return unmarshal[config.RawFileConfig](ret, "config")
}

func (c *Client) GetVersion() (string, error) {
	ret, err := c.Get("/version")
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to get version")
	}
	v, err := unmarshal[string](ret, "version")
	if err != nil {
		return "", err
	}
	return *v, nil
}

func (c *Client) GetStats() (*daemon.StatsResponse, error) {
	ret, err := c.Get("/stats")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get stats")
	}
	return unmarshal[daemon.StatsResponse](ret, "stats")
}

func unmarshal[T any](ret, what string) (*T, error) {
	var v T
	if err := json.Unmarshal([]byte(ret), &v); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal %s", what)
	}
	return &v, nil
}
