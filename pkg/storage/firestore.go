package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"cloud.google.com/go/firestore"
	"github.com/levenlabs/go-lflag"
	"github.com/raterudder/meterbill/pkg/log"
	"github.com/raterudder/meterbill/pkg/types"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreProvider implements Database using Google Cloud Firestore.
// Devices live in the "devices" collection and each device's capabilities in
// its "capabilities" subcollection, one document per name.
type FirestoreProvider struct {
	client    *firestore.Client
	projectID string
	database  string
}

var _ Database = (*FirestoreProvider)(nil)

// configuredFirestore sets up the Firestore provider.
// It registers flags for configuration.
func configuredFirestore() *FirestoreProvider {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")

	f := &FirestoreProvider{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database

		// set this because that's how firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Validate checks if the provider is properly configured.
func (f *FirestoreProvider) Validate() error {
	// an empty project ID is detected from the environment
	return nil
}

// Init initializes the Firestore client.
// This must be called before using the provider methods.
func (f *FirestoreProvider) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.client = client
	return nil
}

// Close closes the Firestore client connection.
func (f *FirestoreProvider) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

func (f *FirestoreProvider) capabilities(deviceID string) (*firestore.CollectionRef, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("deviceID cannot be empty")
	}
	return f.client.Collection("devices").Doc(deviceID).Collection("capabilities"), nil
}

func decodeJSON(doc *firestore.DocumentSnapshot, v any) error {
	val, err := doc.DataAt("json")
	if err != nil {
		return fmt.Errorf("document %s missing json: %w", doc.Ref.ID, err)
	}
	jsonStr, ok := val.(string)
	if !ok {
		return fmt.Errorf("document %s json not string", doc.Ref.ID)
	}
	if err := json.Unmarshal([]byte(jsonStr), v); err != nil {
		return fmt.Errorf("failed to unmarshal document %s: %w", doc.Ref.ID, err)
	}
	return nil
}

// Get reads devices/{deviceID}/capabilities/{name}.
func (f *FirestoreProvider) Get(ctx context.Context, deviceID, name string) (*types.CapabilityValue, error) {
	coll, err := f.capabilities(deviceID)
	if err != nil {
		return nil, err
	}
	doc, err := coll.Doc(name).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get capability %s: %w", name, err)
	}
	var v types.CapabilityValue
	if err := decodeJSON(doc, &v); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "invalid capability doc", slog.String("deviceID", deviceID), slog.String("name", name), slog.Any("err", err))
		return nil, err
	}
	return &v, nil
}

// Set compares and writes the capability in a transaction so concurrent
// writers agree on whether the value changed.
func (f *FirestoreProvider) Set(ctx context.Context, deviceID, name string, value types.CapabilityValue) (bool, error) {
	coll, err := f.capabilities(deviceID)
	if err != nil {
		return false, err
	}
	jsonBytes, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("failed to marshal capability %s: %w", name, err)
	}

	ref := coll.Doc(name)
	var changed bool
	err = f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		changed = false
		doc, err := tx.Get(ref)
		switch {
		case status.Code(err) == codes.NotFound:
		case err != nil:
			return err
		default:
			var prev types.CapabilityValue
			if err := decodeJSON(doc, &prev); err == nil && prev.Equal(value) {
				return nil
			}
		}
		changed = true
		return tx.Set(ref, map[string]interface{}{
			"json":    string(jsonBytes),
			"kind":    string(value.Kind),
			"updated": firestore.ServerTimestamp,
		})
	})
	if err != nil {
		return false, fmt.Errorf("failed to set capability %s: %w", name, err)
	}
	return changed, nil
}

// List returns every capability stored for the device.
func (f *FirestoreProvider) List(ctx context.Context, deviceID string) (map[string]types.CapabilityValue, error) {
	coll, err := f.capabilities(deviceID)
	if err != nil {
		return nil, err
	}
	iter := coll.Documents(ctx)
	defer iter.Stop()

	values := make(map[string]types.CapabilityValue)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating capabilities: %w", err)
		}
		var v types.CapabilityValue
		if err := decodeJSON(doc, &v); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "skipping invalid capability doc", slog.String("deviceID", deviceID), slog.Any("err", err))
			continue
		}
		values[doc.Ref.ID] = v
	}
	return values, nil
}

// Device reads devices/{deviceID}.
func (f *FirestoreProvider) Device(ctx context.Context, deviceID string) (types.DeviceSettings, error) {
	if deviceID == "" {
		return types.DeviceSettings{}, fmt.Errorf("deviceID cannot be empty")
	}
	doc, err := f.client.Collection("devices").Doc(deviceID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return types.DeviceSettings{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
		}
		return types.DeviceSettings{}, fmt.Errorf("failed to get device %s: %w", deviceID, err)
	}
	var d types.DeviceSettings
	if err := decodeJSON(doc, &d); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "invalid device doc", slog.String("deviceID", deviceID), slog.Any("err", err))
		return types.DeviceSettings{}, err
	}
	return d, nil
}

// Devices lists the "devices" collection, skipping malformed documents.
func (f *FirestoreProvider) Devices(ctx context.Context) ([]types.DeviceSettings, error) {
	iter := f.client.Collection("devices").OrderBy(firestore.DocumentID, firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var devices []types.DeviceSettings
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating devices: %w", err)
		}
		var d types.DeviceSettings
		if err := decodeJSON(doc, &d); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "skipping invalid device doc", slog.String("deviceID", doc.Ref.ID), slog.Any("err", err))
			continue
		}
		devices = append(devices, d)
	}
	return devices, nil
}

// PutDevice stores the device settings as a JSON string alongside their
// version.
func (f *FirestoreProvider) PutDevice(ctx context.Context, device types.DeviceSettings) error {
	if device.ID == "" {
		return fmt.Errorf("deviceID cannot be empty")
	}
	jsonBytes, err := json.Marshal(device)
	if err != nil {
		return fmt.Errorf("failed to marshal device: %w", err)
	}
	_, err = f.client.Collection("devices").Doc(device.ID).Set(ctx, map[string]interface{}{
		"json":    string(jsonBytes),
		"version": device.Version,
	})
	if err != nil {
		return fmt.Errorf("failed to save device %s: %w", device.ID, err)
	}
	return nil
}
