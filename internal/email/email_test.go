package email

import (
	"strings"
	"testing"
)

func TestCardReadyContent(t *testing.T) {
	subject, body := cardReadyContent("Priya", "Family")

	if subject != "Your birthday card from Family is ready!" {
		t.Errorf("subject = %q", subject)
	}
	if !strings.Contains(body, "Happy birthday, Priya!") {
		t.Errorf("body = %q", body)
	}
	if !strings.Contains(body, "Everyone in Family signed a card") {
		t.Errorf("body = %q", body)
	}
}

func TestCardReadyContent_EscapesNames(t *testing.T) {
	_, body := cardReadyContent("<script>alert(1)</script>", "Tom & Jerry's")

	if strings.Contains(body, "<script>") {
		t.Errorf("body contains unescaped markup: %q", body)
	}
	if !strings.Contains(body, "&lt;script&gt;") {
		t.Errorf("name not escaped: %q", body)
	}
	if !strings.Contains(body, "Tom &amp; Jerry&#39;s") {
		t.Errorf("group name not escaped: %q", body)
	}
}
