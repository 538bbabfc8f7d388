package ai

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hitoshi/podscribe/internal/model"
)

const (
	summaryMaxTokens   = 2000
	summaryTemperature = 0.25
)

var (
	tldrPreamble    = regexp.MustCompile(`^Here is a [0-9]+ sentence .+:`)
	bulletsPreamble = regexp.MustCompile(`^Here is a [0-9]+ bullet point .+:`)

	answerPreambles = []*regexp.Regexp{
		regexp.MustCompile(`^Based on the transcript provided, `),
		regexp.MustCompile(`^Based on the transcripts provided, `),
		regexp.MustCompile(`^Based on the transcript summary provided, `),
	}
)

// summaryPromptBase は要約プロンプトの共通部分を組み立てる。
func summaryPromptBase(p *model.Podcast, ep *model.Episode) string {
	subtitle := ". "
	if p.Subtitle != "" {
		subtitle = fmt.Sprintf(` and it focuses on "%s". `, p.Subtitle)
	}
	return "You are an expert journalist. I need you to read the " +
		"transcript and summarize it for me. " +
		"Use the style of a tech reporter at ArsTechnica. " +
		fmt.Sprintf(`This comes from the podcast entitled "%s"`, p.Title) +
		subtitle +
		fmt.Sprintf(`The title of this episode is "%s". `, ep.Title)
}

// TLDRPrompt は5から8文の要約を求めるプロンプトを返す。
func TLDRPrompt(p *model.Podcast, ep *model.Episode) string {
	return summaryPromptBase(p, ep) + "Your response should be a TLDR summary of around 5 to 8 sentences."
}

// BulletsPrompt は10個の箇条書きを求めるプロンプトを返す。
func BulletsPrompt(p *model.Podcast, ep *model.Episode) string {
	return summaryPromptBase(p, ep) + "Your response should be in the form of 10 bullet points."
}

// ChatPrompt はエピソードへの質問プロンプトを返す。
// 質問文はプロンプトの末尾にそのまま連結される。
func ChatPrompt(p *model.Podcast, question string) string {
	return fmt.Sprintf(`You are an expert journalist. I am going to give you a transcript for the podcast "%s". `, p.Title) +
		"I want your answer to include sources and fragments from the transcript to support your response. " +
		`I do not want you to make anything up. It's OK to say "I don't know." ` +
		"My question about this podcast episode is:" +
		question
}

// CleanTLDR は要約冒頭の「Here is a N sentence ...:」を除去する。
func CleanTLDR(s string) string {
	return strings.TrimSpace(tldrPreamble.ReplaceAllString(strings.TrimSpace(s), ""))
}

// CleanBullets は箇条書き冒頭の「Here is a N bullet point ...:」を除去する。
func CleanBullets(s string) string {
	return strings.TrimSpace(bulletsPreamble.ReplaceAllString(strings.TrimSpace(s), ""))
}

// CleanAnswer はチャット回答冒頭の定型句を除去し、先頭を大文字にする。
func CleanAnswer(s string) string {
	s = strings.TrimSpace(s)
	for _, re := range answerPreambles {
		s = strings.TrimSpace(re.ReplaceAllString(s, ""))
	}
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	if unicode.IsUpper(r) {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// WordsToSentences は単語列を文に分割する。
// 単語の末尾が「.」「?」「!」のいずれかの場合に文が終わり、文の開始時刻は最初の単語の開始時刻になる。
func WordsToSentences(words []model.TranscriptWord) []model.Sentence {
	var sentences []model.Sentence
	var current []model.TranscriptWord

	for _, w := range words {
		current = append(current, w)
		text := strings.TrimSpace(w.Text)
		if text == "" {
			continue
		}
		switch text[len(text)-1] {
		case '.', '?', '!':
			sentences = append(sentences, model.Sentence{StartSeconds: current[0].StartSeconds, Words: current})
			current = nil
		}
	}
	if len(current) > 0 {
		sentences = append(sentences, model.Sentence{StartSeconds: current[0].StartSeconds, Words: current})
	}
	return sentences
}
