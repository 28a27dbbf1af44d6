package model

import (
	"sync"
	"testing"
	"time"
)

func TestWidgetSessionHeartbeat(t *testing.T) {
	session := &WidgetSession{
		SessionID:     "session-1",
		BotID:         "bot-1",
		LastHeartbeat: time.Now().Add(-2 * time.Minute),
	}

	session.IncrementMissedBeats()
	session.IncrementMissedBeats()
	if session.Missed() != 2 {
		t.Fatalf("missed = %d, want 2", session.Missed())
	}
	if session.ShouldBeCleaned() {
		t.Fatal("2 missed beats should not trigger cleanup")
	}

	session.IncrementMissedBeats()
	if !session.ShouldBeCleaned() {
		t.Fatal("3 missed beats should trigger cleanup")
	}

	// 心跳恢复后丢失计数清零
	before := session.LastBeat()
	session.UpdateHeartbeat()
	if session.Missed() != 0 {
		t.Fatalf("missed after heartbeat = %d, want 0", session.Missed())
	}
	if !session.LastBeat().After(before) {
		t.Fatal("heartbeat should advance LastBeat")
	}
}

// 心跳上报与检测器的读取并发进行，读写都必须走会话锁
func TestWidgetSessionConcurrentHeartbeat(t *testing.T) {
	session := &WidgetSession{
		SessionID:     "session-1",
		BotID:         "bot-1",
		LastHeartbeat: time.Now(),
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				session.UpdateHeartbeat()
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				session.IncrementMissedBeats()
				_ = session.LastBeat()
				_ = session.Missed()
				_ = session.ShouldBeCleaned()
			}
		}()
	}
	wg.Wait()
}
