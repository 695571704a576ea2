package studio

import (
	"context"
	"fmt"
	"log"

	"github.com/dyluth/atelier/pkg/blackboard"
)

// boardRecorder persists every project transition and announces it on the
// message events channel.
type boardRecorder struct {
	board *blackboard.Client
}

func (r boardRecorder) RecordTransition(ctx context.Context, project *blackboard.Project, change blackboard.StageChanged) error {
	if err := r.board.SaveProject(ctx, project); err != nil {
		return fmt.Errorf("failed to save project: %w", err)
	}
	update := blackboard.NewBroadcast(blackboard.RoleDirector, blackboard.MessageTypeUpdate, change)
	if err := r.board.PublishMessage(ctx, update); err != nil {
		return fmt.Errorf("failed to publish stage change: %w", err)
	}
	return nil
}

// boardObserver mirrors routed bus traffic onto the message events channel.
type boardObserver struct {
	board *blackboard.Client
}

func (o boardObserver) ObserveMessage(ctx context.Context, msg blackboard.Message) {
	if err := o.board.PublishMessage(context.WithoutCancel(ctx), msg); err != nil {
		log.Printf("[Studio] Failed to publish %s: %v", msg, err)
	}
}
