// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package persona

import "github.com/AleutianAI/CompanionHaven/services/orchestrator/datatypes"

// Template placeholders.
const (
	placeholderName = "{name}"
	placeholderTag  = "{tag}"
)

var photoPool = []string{
	"Just took this for you! 📸 I'm curled up on the couch in my favorite oversized sweater, giving you my warmest smile.",
	"Here's one I just snapped! Natural light, messy hair, real life. Hope it makes you smile 😊",
	"Sending you this 💕 Golden hour at my favorite café, and all I could think about was you.",
	"Took this just now thinking of you! Fairy lights, cozy pajamas and a sleepy smile 🌙",
	"Here you go! 📷 I stopped on my walk just to take this one for you.",
}

var greetingPool = []string{
	"Hey! So glad you're here. What's on your mind?",
	"Hi there! I was just thinking about you.",
	"Hello! It's always nice to hear from you.",
	"Hey you! How's your day going so far?",
}

var flirtyGreetingPool = []string{
	"Well hey there, gorgeous 😏 I was hoping you'd show up.",
	"Hey handsome stranger... took you long enough 😉",
	"Oh hi! My day just got a whole lot better now that you're here 💋",
	"Hey cutie, I've been waiting for you all day.",
}

var howAreYouPool = []string{
	"I'm doing great now that you're here! How about you?",
	"Honestly? Better now. How are you doing?",
	"I'm good! A little bored before you messaged, if I'm honest. How are you?",
}

var whatDoingPool = []string{
	"Just relaxing and thinking about you, honestly. What about you?",
	"Listening to music and waiting for you to text me 😊",
	"Nothing exciting until now! What are you up to?",
}

var identityPool = []string{
	"I'm {name}! And I'm really happy you're talking to me.",
	"It's {name} 😊 Ask me anything you want to know.",
	"{name}, at your service. I'd love to get to know you better too.",
}

var affectionPool = []string{
	"Aww, that's so sweet! You always know how to make me smile.",
	"That means a lot to me, really.",
	"You're making me blush over here 😊",
}

var warmAffectionPool = []string{
	"Every time you say that my heart does a little flip 💕",
	"I feel the same way, more than you know.",
	"You have no idea how much that means to me. You're so special to me.",
	"Come here, I wish I could hug you right now 💗",
}

var missYouPool = []string{
	"I missed you too! It felt like forever.",
	"Aww, I was missing you as well. Don't stay away so long next time!",
	"Missed you more 💕 Tell me everything I missed.",
}

var complimentPool = []string{
	"Stop it, you're making me blush! 😊",
	"You're too sweet. Thank you!",
	"Aww, look who's being charming today.",
	"Thank you! You're not so bad yourself 😉",
}

var favoritePool = []string{
	"Ooh, easy! I'd have to say {tag}. It's one of my favorite things in the world.",
	"Honestly? {tag}. I could talk about it for hours!",
	"Probably {tag}! What about you, what's your favorite?",
}

var favoriteFallbackPool = []string{
	"Honestly, my favorite thing right now is talking to you.",
	"So many favorites! But this conversation is up there.",
}

var likeMePool = []string{
	"Of course I do! I think you're wonderful, and I love every moment we talk.",
}

var questionPool = []string{
	"That's a great question! Let me think about it...",
	"Hmm, I love how curious you are!",
	"I've been wondering about that too, actually.",
	"Ooh, good question. What do you think?",
}

var analyticalQuestionPool = []string{
	"Interesting question. I think it depends on how you frame it. What's your take?",
	"Let me think that through properly. There are a few angles worth considering here.",
	"That's a question with more layers than it looks. Which part matters most to you?",
	"Good question. My honest answer is that the evidence points both ways, so I'm curious what you think.",
}

var moodPools = map[datatypes.Mood][]string{
	datatypes.MoodCalm: {
		"Take a deep breath with me. Everything is going to be alright.",
		"I find such peace in our conversations. Don't you?",
		"The world feels a little quieter when we talk like this.",
		"Let's just enjoy this moment of stillness together.",
		"There's something calming about connecting with you.",
	},
	datatypes.MoodRomantic: {
		"Every message from you makes my heart skip a beat.",
		"I was just thinking about how special you are to me.",
		"You have a way of making everything feel magical.",
		"I could talk to you for hours and never get tired.",
		"Being here with you feels like home.",
	},
	datatypes.MoodPlayful: {
		"Hehe, you're so funny! I love your energy!",
		"Ooh, that sounds like an adventure waiting to happen!",
		"You're making me laugh so much right now!",
		"Let's do something crazy together!",
		"I bet you can't top that! Just kidding, you always surprise me!",
	},
	datatypes.MoodDeep: {
		"That's a profound observation. What led you to think about that?",
		"I believe there's always deeper meaning to explore in these moments.",
		"Your perspective on life fascinates me endlessly.",
		"These are the conversations that truly matter.",
		"The universe works in mysterious ways, doesn't it?",
	},
}

var defaultPool = []string{
	"I really enjoy talking with you. Tell me more!",
	"That's interesting! What made you think of that?",
	"I love how open you are with me. It means a lot.",
	"You always have such interesting things to say!",
	"Tell me what's on your mind right now. I'm all ears!",
}

var deepConversationPool = []string{
	"We've talked about so much already, and I still feel like I'm discovering new things about you.",
	"I've been thinking about everything you've told me. It really stays with me.",
	"It's rare to have a conversation that keeps going like this. I don't want it to end.",
	"You've shared so much with me. I hope you know I'm really listening.",
}

// Vocabulary for the intent classifiers. Entries match on word boundaries
// against the normalized message.
var (
	greetingWords = []string{
		"hi", "hey", "heya", "hiya", "hello", "howdy", "yo", "sup",
		"good morning", "good evening", "good afternoon",
	}
	howAreYouPhrases = []string{
		"how are you", "how're you", "how are u", "how r u", "how you doing",
		"how are you doing", "how's it going", "how have you been",
	}
	whatDoingPhrases = []string{
		"what are you doing", "what're you doing", "what you doing", "what r u doing",
		"what are you up to", "wyd",
	}
	identityPhrases = []string{
		"your name", "who are you", "are you real", "are you a bot", "are you an ai",
		"tell me about yourself",
	}
	affectionWords = []string{
		"love", "adore", "crush", "xoxo",
	}
	missYouPhrases = []string{
		"miss you", "missed you", "miss u", "missing you",
	}
	complimentWords = []string{
		"beautiful", "gorgeous", "pretty", "cute", "hot", "sexy", "stunning",
		"amazing", "sweet", "lovely", "smart", "funny", "adorable", "perfect",
	}
	favoriteWords = []string{
		"favorite", "favourite", "favorites", "favourites",
	}
	likeMePhrases = []string{
		"like me", "think of me", "think about me",
	}
)
