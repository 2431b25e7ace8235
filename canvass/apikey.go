// Copyright 2025 The GroundGame Authors
// SPDX-License-Identifier: Apache-2.0

package canvass

import (
	"context"
	"errors"
	"fmt"

	apikeys "cloud.google.com/go/apikeys/apiv2"
	"cloud.google.com/go/apikeys/apiv2/apikeyspb"
	"go.uber.org/zap"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/iterator"
)

// APIKeyFromADC looks up the geocoding key named displayName in the Google
// Cloud project using Application Default Credentials. An empty projectID
// means the project of the credentials.
func APIKeyFromADC(ctx context.Context, projectID, displayName string, logger *zap.Logger) (string, error) {
	if projectID == "" {
		creds, err := google.FindDefaultCredentials(ctx, "https://www.googleapis.com/auth/cloud-platform")
		if err != nil {
			return "", fmt.Errorf("finding default credentials: %w", err)
		}

		projectID = creds.ProjectID
	}

	// User credentials without a quota project carry no project id.
	if projectID == "" {
		return "", errors.New("no project id in credentials; set geocoder.project_id")
	}

	client, err := apikeys.NewClient(ctx)
	if err != nil {
		return "", fmt.Errorf("creating apikeys client: %w", err)
	}
	defer client.Close()

	it := client.ListKeys(ctx, &apikeyspb.ListKeysRequest{
		Parent: fmt.Sprintf("projects/%s/locations/global", projectID),
	})

	for {
		key, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}

		if err != nil {
			return "", fmt.Errorf("listing keys: %w", err)
		}

		if key.GetDisplayName() != displayName {
			continue
		}

		// ListKeys redacts the secret.
		logger.Debug("found api key resource", zap.String("name", key.GetName()))

		resp, err := client.GetKeyString(ctx, &apikeyspb.GetKeyStringRequest{Name: key.GetName()})
		if err != nil {
			return "", fmt.Errorf("getting key string: %w", err)
		}

		if resp.GetKeyString() == "" {
			return "", fmt.Errorf("key %q has an empty key string", displayName)
		}

		return resp.GetKeyString(), nil
	}

	return "", fmt.Errorf("no api key named %q in project %s", displayName, projectID)
}
