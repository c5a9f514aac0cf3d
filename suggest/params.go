package suggest

import "strings"

type Tone string

const (
	ToneNeutral       Tone = "neutral"
	ToneMysterious    Tone = "mysterious"
	ToneCryptic       Tone = "cryptic"
	ToneFriendly      Tone = "friendly"
	TonePhilosophical Tone = "philosophical"
)

type Topic string

const (
	TopicDigital  Topic = "digital"
	TopicFuture   Topic = "future"
	TopicSociety  Topic = "society"
	TopicPersonal Topic = "personal"
	TopicAbstract Topic = "abstract"
)

type Niche string

const (
	NicheCybersecurity   Niche = "cybersecurity"
	NicheAI              Niche = "ai"
	NicheDigitalIdentity Niche = "digital-identity"
	NicheVirtualReality  Niche = "virtual-reality"
	NicheTechEthics      Niche = "tech-ethics"
)

const (
	DefaultTone      = ToneNeutral
	DefaultTopic     = TopicDigital
	DefaultNiche     = NicheDigitalIdentity
	DefaultRecipient = "user"

	maxRecipientLen = 40
)

var toneDescriptors = map[Tone]string{
	ToneNeutral:       "balanced, approachable and easygoing",
	ToneMysterious:    "mysterious, intriguing and slightly secretive",
	ToneCryptic:       "cryptic, enigmatic and riddle-like",
	ToneFriendly:      "warm, friendly and upbeat",
	TonePhilosophical: "thoughtful, reflective and philosophical",
}

var topicDescriptors = map[Topic]string{
	TopicDigital:  "everyday life in the digital world",
	TopicFuture:   "visions of the future and what tomorrow might bring",
	TopicSociety:  "how a networked society connects and shapes people",
	TopicPersonal: "the digital self and how people present themselves online",
	TopicAbstract: "abstract ideas, concepts and thought experiments",
}

var nicheDescriptors = map[Niche]string{
	NicheCybersecurity:   "cybersecurity, privacy and staying safe online",
	NicheAI:              "artificial intelligence and living alongside smart machines",
	NicheDigitalIdentity: "digital identity, online personas and anonymity",
	NicheVirtualReality:  "virtual reality, immersive worlds and the metaverse",
	NicheTechEthics:      "technology ethics and the responsibilities of builders",
}

// Tones, Topics and Niches list the accepted values in display order.
var (
	Tones  = []Tone{ToneNeutral, ToneMysterious, ToneCryptic, ToneFriendly, TonePhilosophical}
	Topics = []Topic{TopicDigital, TopicFuture, TopicSociety, TopicPersonal, TopicAbstract}
	Niches = []Niche{NicheCybersecurity, NicheAI, NicheDigitalIdentity, NicheVirtualReality, NicheTechEthics}
)

// ParseTone never fails: unknown or empty input yields DefaultTone.
func ParseTone(s string) Tone {
	t := Tone(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := toneDescriptors[t]; ok {
		return t
	}
	return DefaultTone
}

func ParseTopic(s string) Topic {
	t := Topic(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := topicDescriptors[t]; ok {
		return t
	}
	return DefaultTopic
}

func ParseNiche(s string) Niche {
	n := Niche(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := nicheDescriptors[n]; ok {
		return n
	}
	return DefaultNiche
}

func (t Tone) Descriptor() string {
	if d, ok := toneDescriptors[t]; ok {
		return d
	}
	return toneDescriptors[DefaultTone]
}

func (t Topic) Descriptor() string {
	if d, ok := topicDescriptors[t]; ok {
		return d
	}
	return topicDescriptors[DefaultTopic]
}

func (n Niche) Descriptor() string {
	if d, ok := nicheDescriptors[n]; ok {
		return d
	}
	return nicheDescriptors[DefaultNiche]
}

// Params are the knobs of one suggestion request.
type Params struct {
	Tone      Tone
	Topic     Topic
	Niche     Niche
	Recipient string
}

// NewParams maps raw request values to Params, substituting defaults for
// anything missing or unrecognised.
func NewParams(tone, topic, niche, recipient string) Params {
	return Params{
		Tone:      ParseTone(tone),
		Topic:     ParseTopic(topic),
		Niche:     ParseNiche(niche),
		Recipient: cleanRecipient(recipient),
	}
}

// Normalize replaces any out-of-range field with its default.
func (p Params) Normalize() Params {
	return NewParams(string(p.Tone), string(p.Topic), string(p.Niche), p.Recipient)
}

func cleanRecipient(s string) string {
	s = strings.Map(func(r rune) rune {
		// Quotes and the delimiter would let a visitor steer the instruction text.
		switch r {
		case '"', '\'', '`', '|':
			return -1
		}
		return r
	}, s)
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return DefaultRecipient
	}
	if r := []rune(s); len(r) > maxRecipientLen {
		s = string(r[:maxRecipientLen])
	}
	return s
}
