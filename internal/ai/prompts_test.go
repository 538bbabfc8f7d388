package ai

import (
	"testing"

	"github.com/hitoshi/podscribe/internal/model"
)

func TestSummaryPrompts(t *testing.T) {
	ep := &model.Episode{Title: "Async Python in depth"}

	withSubtitle := &model.Podcast{Title: "Talk Python To Me", Subtitle: "Python conversations"}
	want := `You are an expert journalist. I need you to read the transcript and summarize it for me. ` +
		`Use the style of a tech reporter at ArsTechnica. ` +
		`This comes from the podcast entitled "Talk Python To Me" and it focuses on "Python conversations". ` +
		`The title of this episode is "Async Python in depth". ` +
		`Your response should be a TLDR summary of around 5 to 8 sentences.`
	if got := TLDRPrompt(withSubtitle, ep); got != want {
		t.Errorf("TLDRPrompt() =\n%s\nwant\n%s", got, want)
	}

	noSubtitle := &model.Podcast{Title: "Darknet Diaries"}
	want = `You are an expert journalist. I need you to read the transcript and summarize it for me. ` +
		`Use the style of a tech reporter at ArsTechnica. ` +
		`This comes from the podcast entitled "Darknet Diaries". ` +
		`The title of this episode is "Async Python in depth". ` +
		`Your response should be in the form of 10 bullet points.`
	if got := BulletsPrompt(noSubtitle, ep); got != want {
		t.Errorf("BulletsPrompt() =\n%s\nwant\n%s", got, want)
	}
}

func TestChatPrompt(t *testing.T) {
	got := ChatPrompt(&model.Podcast{Title: "Python Bytes"}, "Who was the guest?")
	want := `You are an expert journalist. I am going to give you a transcript for the podcast "Python Bytes". ` +
		`I want your answer to include sources and fragments from the transcript to support your response. ` +
		`I do not want you to make anything up. It's OK to say "I don't know." ` +
		`My question about this podcast episode is:Who was the guest?`
	if got != want {
		t.Errorf("ChatPrompt() =\n%s\nwant\n%s", got, want)
	}
}

func TestCleanSummaries(t *testing.T) {
	tldr := "Here is a 5 sentence summary of the key details from the transcript in the style of an ArsTechnica tech reporter:\n\nPython 3.12 ships."
	if got := CleanTLDR(tldr); got != "Python 3.12 ships." {
		t.Errorf("CleanTLDR() = %q", got)
	}

	bullets := "Here is a 10 bullet point summary of the key details:\n- one\n- two"
	if got := CleanBullets(bullets); got != "- one\n- two" {
		t.Errorf("CleanBullets() = %q", got)
	}

	if got := CleanTLDR("No preamble here."); got != "No preamble here." {
		t.Errorf("CleanTLDR() = %q, 定型句がなければそのまま", got)
	}
	// TLDR用の定型句は箇条書き側では除去しない
	if got := CleanBullets("Here is a 5 sentence summary:\nx"); got != "Here is a 5 sentence summary:\nx" {
		t.Errorf("CleanBullets() = %q", got)
	}
}

func TestCleanAnswer(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Based on the transcript provided, the guest was Brett.", "The guest was Brett."},
		{"Based on the transcripts provided, they discuss uv.", "They discuss uv."},
		{"Based on the transcript summary provided, yes.", "Yes."},
		{"  already Fine.  ", "Already Fine."},
		{"I don't know.", "I don't know."},
		{"", ""},
	}
	for _, tt := range tests {
		if got := CleanAnswer(tt.in); got != tt.want {
			t.Errorf("CleanAnswer(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWordsToSentences(t *testing.T) {
	words := []model.TranscriptWord{
		{Text: "Welcome", StartSeconds: 0.5},
		{Text: "back.", StartSeconds: 0.9},
		{Text: "Ready?", StartSeconds: 1.4},
		{Text: "Let's", StartSeconds: 2.0},
		{Text: "go!", StartSeconds: 2.2},
		{Text: "trailing", StartSeconds: 3.0},
		{Text: "words", StartSeconds: 3.3},
	}

	got := WordsToSentences(words)
	if len(got) != 4 {
		t.Fatalf("文の数 = %d, want 4", len(got))
	}
	wantText := []string{"Welcome back.", "Ready?", "Let's go!", "trailing words"}
	wantStart := []float64{0.5, 1.4, 2.0, 3.0}
	for i, s := range got {
		if s.Text() != wantText[i] || s.StartSeconds != wantStart[i] {
			t.Errorf("文[%d] = %q @%v, want %q @%v", i, s.Text(), s.StartSeconds, wantText[i], wantStart[i])
		}
	}

	if len(WordsToSentences(nil)) != 0 {
		t.Error("空の単語列は空の文リストになるべき")
	}
}
