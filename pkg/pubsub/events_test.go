package pubsub

import (
	"testing"
	"time"
)

func TestWebhookDeliveredEvent_Validate(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		event   WebhookDeliveredEvent
		wantErr bool
	}{
		{
			name: "valid",
			event: WebhookDeliveredEvent{
				Version:     EventVersion1,
				Client:      "dataforseo",
				Tag:         "cachekey-123",
				Endpoint:    "webhook",
				StatusCode:  200,
				DeliveredAt: now,
				RequestID:   "req-123",
			},
			wantErr: false,
		},
		{
			name: "invalid version",
			event: WebhookDeliveredEvent{
				Version:     999,
				Client:      "dataforseo",
				Tag:         "cachekey-123",
				DeliveredAt: now,
			},
			wantErr: true,
		},
		{
			name: "missing client",
			event: WebhookDeliveredEvent{
				Version:     EventVersion1,
				Tag:         "cachekey-123",
				DeliveredAt: now,
			},
			wantErr: true,
		},
		{
			name: "missing tag",
			event: WebhookDeliveredEvent{
				Version:     EventVersion1,
				Client:      "dataforseo",
				DeliveredAt: now,
			},
			wantErr: true,
		},
		{
			name: "zero delivered_at",
			event: WebhookDeliveredEvent{
				Version: EventVersion1,
				Client:  "dataforseo",
				Tag:     "cachekey-123",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWebhookDeliveredEvent_JSON(t *testing.T) {
	now := time.Now().Truncate(time.Second)

	event := &WebhookDeliveredEvent{
		Version:     EventVersion1,
		Client:      "dataforseo",
		Tag:         "cachekey-123",
		Endpoint:    "webhook",
		StatusCode:  200,
		DeliveredAt: now,
		Meta:        map[string]string{"source": "dataforseo"},
		RequestID:   "req-123",
	}

	data, err := event.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}

	decoded, err := WebhookDeliveredEventFromJSON(data)
	if err != nil {
		t.Fatalf("WebhookDeliveredEventFromJSON() error = %v", err)
	}

	if decoded.Client != event.Client {
		t.Errorf("Client = %v, want %v", decoded.Client, event.Client)
	}
	if decoded.Tag != event.Tag {
		t.Errorf("Tag = %v, want %v", decoded.Tag, event.Tag)
	}
	if decoded.StatusCode != event.StatusCode {
		t.Errorf("StatusCode = %v, want %v", decoded.StatusCode, event.StatusCode)
	}
	if !decoded.DeliveredAt.Equal(event.DeliveredAt) {
		t.Errorf("DeliveredAt = %v, want %v", decoded.DeliveredAt, event.DeliveredAt)
	}
	if decoded.Meta["source"] != event.Meta["source"] {
		t.Errorf("Meta[source] = %v, want %v", decoded.Meta["source"], event.Meta["source"])
	}
	if decoded.RequestID != event.RequestID {
		t.Errorf("RequestID = %v, want %v", decoded.RequestID, event.RequestID)
	}
}

func TestProcessorSweepCompletedEvent_Validate(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		event   ProcessorSweepCompletedEvent
		wantErr bool
	}{
		{
			name: "valid success",
			event: ProcessorSweepCompletedEvent{
				Version:     EventVersion1,
				Processor:   "serpprocessor",
				Client:      "dataforseo",
				Status:      "success",
				Scanned:     10,
				Processed:   10,
				Upserted:    10,
				CompletedAt: now,
			},
			wantErr: false,
		},
		{
			name: "valid partial with errors",
			event: ProcessorSweepCompletedEvent{
				Version:     EventVersion1,
				Processor:   "serpprocessor",
				Client:      "dataforseo",
				Status:      "partial",
				Scanned:     10,
				Processed:   8,
				Upserted:    8,
				Errors:      2,
				CompletedAt: now,
			},
			wantErr: false,
		},
		{
			name: "invalid status",
			event: ProcessorSweepCompletedEvent{
				Version:     EventVersion1,
				Processor:   "serpprocessor",
				Status:      "unknown",
				CompletedAt: now,
			},
			wantErr: true,
		},
		{
			name: "missing processor",
			event: ProcessorSweepCompletedEvent{
				Version:     EventVersion1,
				Status:      "success",
				CompletedAt: now,
			},
			wantErr: true,
		},
		{
			name: "negative counts",
			event: ProcessorSweepCompletedEvent{
				Version:     EventVersion1,
				Processor:   "serpprocessor",
				Status:      "success",
				Errors:      -1,
				CompletedAt: now,
			},
			wantErr: true,
		},
		{
			name: "zero completed_at",
			event: ProcessorSweepCompletedEvent{
				Version:   EventVersion1,
				Processor: "serpprocessor",
				Status:    "success",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestProcessorSweepCompletedEvent_JSON(t *testing.T) {
	now := time.Now().Truncate(time.Second)

	event := &ProcessorSweepCompletedEvent{
		Version:     EventVersion1,
		Processor:   "imageprocessor",
		Client:      "dataforseo",
		Status:      "partial",
		Scanned:     20,
		Processed:   18,
		Upserted:    18,
		Errors:      2,
		Error:       "2 rows failed extraction",
		CompletedAt: now,
		RequestID:   "req-456",
	}

	data, err := event.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}

	decoded, err := ProcessorSweepCompletedEventFromJSON(data)
	if err != nil {
		t.Fatalf("ProcessorSweepCompletedEventFromJSON() error = %v", err)
	}

	if decoded.Status != event.Status {
		t.Errorf("Status = %v, want %v", decoded.Status, event.Status)
	}
	if decoded.Processed != event.Processed {
		t.Errorf("Processed = %v, want %v", decoded.Processed, event.Processed)
	}
	if decoded.Errors != event.Errors {
		t.Errorf("Errors = %v, want %v", decoded.Errors, event.Errors)
	}
	if decoded.Error != event.Error {
		t.Errorf("Error = %v, want %v", decoded.Error, event.Error)
	}
}

func TestIsValidTopic(t *testing.T) {
	if !IsValidTopic(TopicWebhookDelivered) {
		t.Error("TopicWebhookDelivered should be valid")
	}
	if !IsValidTopic(TopicProcessorSweepCompleted) {
		t.Error("TopicProcessorSweepCompleted should be valid")
	}
	if IsValidTopic("not.a.topic") {
		t.Error("unknown topic should be invalid")
	}
}
