package storage

const schema = `
-- The 'session' table holds at most one row: the signed-in user's credential pair.
CREATE TABLE IF NOT EXISTS session (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    token TEXT NOT NULL,
    user_id INTEGER NOT NULL,
    saved_at INTEGER NOT NULL
);

-- The 'preferences' table stores small key/value records such as sync metadata.
CREATE TABLE IF NOT EXISTS preferences (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

-- Content tables mirror remote study content. Rows are keyed by (id, user_id)
-- so two accounts on the same device never share a row.
CREATE TABLE IF NOT EXISTS decks (
    id INTEGER NOT NULL,
    user_id INTEGER NOT NULL,
    title TEXT NOT NULL,
    status TEXT NOT NULL,
    created_at TEXT NOT NULL DEFAULT '',
    total_count INTEGER NOT NULL DEFAULT 0,
    studied_count INTEGER NOT NULL DEFAULT 0,

    PRIMARY KEY (id, user_id)
);

CREATE TABLE IF NOT EXISTS flashcards (
    id INTEGER NOT NULL,
    deck_id INTEGER NOT NULL,
    user_id INTEGER NOT NULL,
    front TEXT NOT NULL,
    back TEXT NOT NULL,
    kind TEXT NOT NULL DEFAULT '',

    PRIMARY KEY (id, user_id)
);
CREATE INDEX IF NOT EXISTS idx_flashcards_user_deck ON flashcards(user_id, deck_id);

CREATE TABLE IF NOT EXISTS quizzes (
    id INTEGER NOT NULL,
    document_id INTEGER NOT NULL,
    user_id INTEGER NOT NULL,
    title TEXT NOT NULL DEFAULT '',
    synced INTEGER NOT NULL DEFAULT 1,

    PRIMARY KEY (id, user_id)
);
CREATE INDEX IF NOT EXISTS idx_quizzes_user_document ON quizzes(user_id, document_id);

CREATE TABLE IF NOT EXISTS questions (
    id INTEGER NOT NULL,
    quiz_id INTEGER NOT NULL,
    user_id INTEGER NOT NULL,
    text TEXT NOT NULL,
    position INTEGER NOT NULL DEFAULT 0,

    PRIMARY KEY (id, user_id)
);
CREATE INDEX IF NOT EXISTS idx_questions_user_quiz ON questions(user_id, quiz_id);

CREATE TABLE IF NOT EXISTS answers (
    id INTEGER NOT NULL,
    question_id INTEGER NOT NULL,
    user_id INTEGER NOT NULL,
    text TEXT NOT NULL,
    is_correct INTEGER NOT NULL DEFAULT 0,
    explanation TEXT NOT NULL DEFAULT '',
    position INTEGER NOT NULL DEFAULT 0,

    PRIMARY KEY (id, user_id)
);
CREATE INDEX IF NOT EXISTS idx_answers_user_question ON answers(user_id, question_id);

-- Event tables are append-only until the remote service acknowledges a row.
CREATE TABLE IF NOT EXISTS study_logs (
    local_id INTEGER PRIMARY KEY AUTOINCREMENT,
    event_id TEXT NOT NULL UNIQUE,
    flashcard_id INTEGER NOT NULL,
    user_id INTEGER NOT NULL,
    accuracy REAL NOT NULL,
    recorded_at INTEGER NOT NULL,
    synced INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_study_logs_pending ON study_logs(user_id, synced);

CREATE TABLE IF NOT EXISTS quiz_attempts (
    local_id INTEGER PRIMARY KEY AUTOINCREMENT,
    event_id TEXT NOT NULL UNIQUE,
    quiz_id INTEGER NOT NULL,
    user_id INTEGER NOT NULL,
    score REAL NOT NULL,
    correct_answers INTEGER NOT NULL,
    total_questions INTEGER NOT NULL,
    attempted_at INTEGER NOT NULL,
    synced INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_quiz_attempts_pending ON quiz_attempts(user_id, synced);
`
